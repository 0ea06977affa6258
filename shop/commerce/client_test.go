package commerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend emulates the commerce API endpoints used by the client.
type fakeBackend struct {
	t *testing.T

	authCalls    int
	authStatus   int
	catalogCalls int

	customerEmail string
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		b.authCalls++
		if b.authStatus != 0 {
			w.WriteHeader(b.authStatus)
			return
		}
		require.NoError(b.t, r.ParseForm())
		assert.Equal(b.t, "client_credentials", r.FormValue("grant_type"))
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":3600}`)
	})

	requireAuth := func(r *http.Request) {
		assert.Equal(b.t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.NotEmpty(b.t, r.Header.Get("X-Request-Id"))
	}

	mux.HandleFunc("GET /catalog/products", func(w http.ResponseWriter, r *http.Request) {
		b.catalogCalls++
		requireAuth(r)
		fmt.Fprint(w, `{"data":[
			{"id":"p1","attributes":{"name":"Salmon","description":"Fresh","price":{"USD":{"amount":1250}}},
			 "relationships":{"main_image":{"data":{"id":"img1"}}}},
			{"id":"p2","attributes":{"name":"Tuna","price":{"EUR":{"amount":990}}}}
		]}`)
	})

	mux.HandleFunc("GET /v2/inventories", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(r)
		fmt.Fprint(w, `{"data":[{"id":"p1","available":20}]}`)
	})

	mux.HandleFunc("GET /v2/files/img1", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(r)
		fmt.Fprintf(w, `{"data":{"link":{"href":"http://%s/image.jpg"}}}`, r.Host)
	})
	mux.HandleFunc("GET /image.jpg", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "raw-image-bytes")
	})

	mux.HandleFunc("POST /v2/carts/42/items", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(r)
		fmt.Fprint(w, cartJSON)
	})
	mux.HandleFunc("GET /v2/carts/42/items", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(r)
		fmt.Fprint(w, cartJSON)
	})
	mux.HandleFunc("DELETE /v2/carts/42/items/item-1", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(r)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /v2/customers", func(w http.ResponseWriter, r *http.Request) {
		requireAuth(r)
		var body customerRequest
		raw, _ := io.ReadAll(r.Body)
		require.NoError(b.t, json.Unmarshal(raw, &body))
		b.customerEmail = body.Data.Email
		if body.Data.Email == "reject@example.com" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		fmt.Fprint(w, `{"data":{"id":"cust-1"}}`)
	})

	return mux
}

const cartJSON = `{
	"data":[{"id":"item-1","product_id":"p1","name":"Salmon","quantity":5,
	         "unit_price":{"amount":1250},"value":{"amount":6250}}],
	"meta":{"display_price":{"without_tax":{"amount":6250}}}
}`

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	backend.t = t
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:      srv.URL,
		ClientID:     "cid",
		ClientSecret: "secret",
	}, &memoryTokenCache{})
}

// memoryTokenCache is a trivial TokenCache for tests.
type memoryTokenCache struct {
	value string
}

func (c *memoryTokenCache) Token(context.Context) (string, error) { return c.value, nil }
func (c *memoryTokenCache) PutToken(_ context.Context, value string, _ time.Duration) error {
	c.value = value
	return nil
}

func TestListCatalogJoinsInventory(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	products, err := c.ListCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "Salmon", products[0].Name)
	assert.Equal(t, "12.50", products[0].UnitPrice.StringFixed(2))
	assert.Equal(t, 20, products[0].Stock)
	assert.Equal(t, "img1", products[0].ImageID)

	// Non-USD fallback, no inventory record.
	assert.Equal(t, "9.90", products[1].UnitPrice.StringFixed(2))
	assert.Zero(t, products[1].Stock)
}

func TestTokenAcquiredOnce(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend)

	_, err := c.ListCatalog(context.Background())
	require.NoError(t, err)
	_, err = c.Cart(context.Background(), "42")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.authCalls)
}

func TestAuthError(t *testing.T) {
	c := newTestClient(t, &fakeBackend{authStatus: http.StatusUnauthorized})

	_, err := c.ListCatalog(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, "AUTH_ERROR", authErr.Code())
}

func TestUpstreamErrorOnUnknownRoute(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	_, err := c.Cart(context.Background(), "99")
	require.Error(t, err)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusNotFound, upstream.Status)
	assert.Equal(t, "UPSTREAM_ERROR", upstream.Code())
}

func TestAddCartItem(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	snap, err := c.AddCartItem(context.Background(), "42", "p1", 5)
	require.NoError(t, err)

	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "item-1", snap.Lines[0].ID)
	assert.Equal(t, "p1", snap.Lines[0].ProductID)
	assert.Equal(t, 5, snap.Lines[0].Quantity)
	assert.Equal(t, "62.50", snap.Lines[0].LineTotal.StringFixed(2))
	assert.Equal(t, "62.50", snap.Total.StringFixed(2))
	assert.Equal(t, 5, snap.QuantityOf("p1"))
	assert.Zero(t, snap.QuantityOf("p2"))
}

func TestRemoveCartItem(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	err := c.RemoveCartItem(context.Background(), "42", "item-1")
	require.NoError(t, err)
}

func TestCreateCustomer(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestClient(t, backend)

	id, err := c.CreateCustomer(context.Background(), "John Doe", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", id)
	assert.Equal(t, "user@example.com", backend.customerEmail)
}

func TestCreateCustomerValidation(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	_, err := c.CreateCustomer(context.Background(), "John Doe", "reject@example.com")
	require.Error(t, err)

	var validation *ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "VALIDATION_ERROR", validation.Code())
}

func TestProductImage(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	stream, err := c.ProductImage(context.Background(), "img1")
	require.NoError(t, err)
	defer stream.Close()

	raw, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "raw-image-bytes", string(raw))
}

func TestProductImageNotFound(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	_, err := c.ProductImage(context.Background(), "missing")
	require.Error(t, err)

	var notFound *NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "NOT_FOUND", notFound.Code())
}
