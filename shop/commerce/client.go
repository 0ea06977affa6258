package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/core/logger"

	"log/slog"
)

const (
	defaultDialTimeout     = 5 * time.Second
	defaultTLSHandshake    = 5 * time.Second
	defaultIdleConnTimeout = 30 * time.Second
	defaultResponseTimeout = 10 * time.Second
	defaultClientTimeout   = 30 * time.Second

	// tokenSafetyMargin is subtracted from the reported token lifetime so a
	// cached token never expires mid-request.
	tokenSafetyMargin = 60 * time.Second

	maxErrorDetail = 256
)

// Config holds commerce backend credentials and connection settings.
type Config struct {
	BaseURL      string `yaml:"base_url" envconfig:"COMMERCE_BASE_URL"`
	ClientID     string `yaml:"client_id" envconfig:"COMMERCE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" envconfig:"COMMERCE_CLIENT_SECRET"`
	// TokenTTLSeconds overrides the lifetime reported by the auth endpoint
	// when > 0.
	TokenTTLSeconds int `yaml:"token_ttl_seconds" envconfig:"COMMERCE_TOKEN_TTL_SECONDS"`
}

// Normalize validates required fields and trims the base URL.
func (c *Config) Normalize() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		return fmt.Errorf("commerce.base_url is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("commerce.client_id is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("commerce.client_secret is required")
	}
	return nil
}

// TokenCache stores the shared bearer token with a lifetime. Implemented by
// the session store.
type TokenCache interface {
	Token(ctx context.Context) (string, error)
	PutToken(ctx context.Context, value string, ttl time.Duration) error
}

// Client talks to the commerce backend. Safe for concurrent use; token
// refresh is serialized with a mutex so only one request hits the auth
// endpoint on expiry.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenCache

	tokenMu sync.Mutex
}

var _ API = (*Client)(nil)

// NewClient builds a commerce client on a tuned HTTP transport.
func NewClient(cfg Config, tokens TokenCache) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: defaultResponseTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: defaultClientTimeout, Transport: transport},
		tokens: tokens,
	}
}

// ListCatalog fetches catalog products and inventories and joins them on
// product id. Products missing an inventory record report zero stock.
func (c *Client) ListCatalog(ctx context.Context) ([]Product, error) {
	var catalog catalogResponse
	if err := c.doJSON(ctx, http.MethodGet, "/catalog/products", nil, &catalog, "catalog.list"); err != nil {
		return nil, err
	}
	var inv inventoriesResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v2/inventories", nil, &inv, "inventories.list"); err != nil {
		return nil, err
	}

	available := make(map[string]int, len(inv.Data))
	for _, rec := range inv.Data {
		available[rec.ID] = rec.Available
	}

	products := make([]Product, 0, len(catalog.Data))
	for _, raw := range catalog.Data {
		products = append(products, Product{
			ID:          raw.ID,
			Name:        raw.Attributes.Name,
			Description: raw.Attributes.Description,
			UnitPrice:   pickPrice(raw.Attributes.Price),
			Stock:       available[raw.ID],
			ImageID:     raw.Relationships.MainImage.Data.ID,
		})
	}
	return products, nil
}

// pickPrice prefers the USD amount and falls back to any configured currency.
func pickPrice(prices map[string]priceField) decimal.Decimal {
	if p, ok := prices["USD"]; ok {
		return centsToDecimal(p.Amount)
	}
	for _, p := range prices {
		return centsToDecimal(p.Amount)
	}
	return decimal.Zero
}

// ProductImage resolves the file record for imageID and streams the image
// bytes from the returned link. The caller owns the stream.
func (c *Client) ProductImage(ctx context.Context, imageID string) (io.ReadCloser, error) {
	var file fileResponse
	err := c.doJSON(ctx, http.MethodGet, "/v2/files/"+url.PathEscape(imageID), nil, &file, "files.get")
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.Status == http.StatusNotFound {
			return nil, &NotFoundError{Op: "files.get", ID: imageID}
		}
		return nil, err
	}
	href := file.Data.Link.Href
	if href == "" {
		return nil, &NotFoundError{Op: "files.get", ID: imageID}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return nil, fmt.Errorf("commerce files.get: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("commerce files.get: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, &NotFoundError{Op: "files.get", ID: imageID}
		}
		return nil, &UpstreamError{Op: "files.get", Status: resp.StatusCode}
	}
	return resp.Body, nil
}

// AddCartItem puts quantity units of a product into the chat's cart and
// returns the updated snapshot.
func (c *Client) AddCartItem(ctx context.Context, cartID, productID string, quantity int) (CartSnapshot, error) {
	var body cartItemRequest
	body.Data.Type = "cart_item"
	body.Data.ID = productID
	body.Data.Quantity = quantity

	var items cartItemsResponse
	path := "/v2/carts/" + url.PathEscape(cartID) + "/items"
	if err := c.doJSON(ctx, http.MethodPost, path, body, &items, "cart.add"); err != nil {
		return CartSnapshot{}, err
	}
	return items.snapshot(), nil
}

// Cart fetches the chat's cart contents.
func (c *Client) Cart(ctx context.Context, cartID string) (CartSnapshot, error) {
	var items cartItemsResponse
	path := "/v2/carts/" + url.PathEscape(cartID) + "/items"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &items, "cart.get"); err != nil {
		return CartSnapshot{}, err
	}
	return items.snapshot(), nil
}

// RemoveCartItem deletes one cart line by its cart-item id.
func (c *Client) RemoveCartItem(ctx context.Context, cartID, itemID string) error {
	path := "/v2/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(itemID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, "cart.remove")
}

// ClearCart deletes every line in the chat's cart.
func (c *Client) ClearCart(ctx context.Context, cartID string) error {
	path := "/v2/carts/" + url.PathEscape(cartID) + "/items"
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, "cart.clear")
}

// CreateCustomer registers a customer record and returns its id.
func (c *Client) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	var body customerRequest
	body.Data.Type = "customer"
	body.Data.Name = name
	body.Data.Email = email

	var created customerResponse
	err := c.doJSON(ctx, http.MethodPost, "/v2/customers", body, &created, "customer.create")
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) && upstream.Status == http.StatusUnprocessableEntity {
			return "", &ValidationError{Field: "email", Reason: "rejected by commerce backend"}
		}
		return "", err
	}
	return created.Data.ID, nil
}

// accessToken returns the shared bearer token, refreshing it through the auth
// endpoint on cache miss or expiry. Cache failures degrade to a fresh fetch.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if token := c.cachedToken(ctx); token != "" {
		return token, nil
	}

	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	// Another event may have refreshed the token while we waited.
	if token := c.cachedToken(ctx); token != "" {
		return token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("commerce auth: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Request-Id", uuid.NewString())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &AuthError{Detail: sanitizeDetail(err.Error(), c.cfg.ClientSecret)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail := readDetail(resp.Body)
		return "", &AuthError{Status: resp.StatusCode, Detail: detail}
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", &AuthError{Status: resp.StatusCode, Detail: "malformed token response"}
	}
	if token.AccessToken == "" {
		return "", &AuthError{Status: resp.StatusCode, Detail: "empty access token"}
	}

	ttl := time.Duration(token.ExpiresIn) * time.Second
	if c.cfg.TokenTTLSeconds > 0 {
		ttl = time.Duration(c.cfg.TokenTTLSeconds) * time.Second
	}
	if ttl > tokenSafetyMargin {
		ttl -= tokenSafetyMargin
	}
	if c.tokens != nil && ttl > 0 {
		if err := c.tokens.PutToken(ctx, token.AccessToken, ttl); err != nil {
			logger.Warn(ctx, "commerce", "token.cache_put_failed",
				slog.String("err", err.Error()),
			)
		}
	}
	logger.Info(ctx, "commerce", "token.refreshed",
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
		slog.Duration("ttl", ttl),
	)
	return token.AccessToken, nil
}

func (c *Client) cachedToken(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		logger.Warn(ctx, "commerce", "token.cache_get_failed",
			slog.String("err", err.Error()),
		)
		return ""
	}
	return token
}

// doJSON performs an authenticated JSON request against the commerce API.
// out may be nil when the response body is irrelevant.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, op string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("commerce %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("commerce %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Op: op, Detail: sanitizeDetail(err.Error(), token)}
	}
	defer resp.Body.Close()

	logger.Debug(ctx, "commerce", op,
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Op: op, Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Op: op, Status: resp.StatusCode, Detail: "malformed response body"}
	}
	return nil
}

// readDetail captures a short slice of an error response body for logs.
func readDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorDetail))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// sanitizeDetail hides the given secret if a transport error echoes it.
func sanitizeDetail(detail, secret string) string {
	if secret == "" {
		return detail
	}
	return strings.ReplaceAll(detail, secret, "[REDACTED]")
}
