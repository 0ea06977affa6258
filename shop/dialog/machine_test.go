package dialog

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/commerce"
	"github.com/m3rciful/shopbot/shop/session"
	"github.com/m3rciful/shopbot/shop/view"
)

// fakeAPI implements commerce.API against an in-memory catalog and cart.
type fakeAPI struct {
	products []commerce.Product
	carts    map[string][]commerce.CartLine

	customerCalls int
	lastCustomer  struct{ name, email string }

	listErr  error
	cartErr  error
	clearErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		products: []commerce.Product{
			{ID: "p1", Name: "Salmon", Description: "Fresh salmon", UnitPrice: decimal.New(1250, -2), Stock: 20, ImageID: "img1"},
			{ID: "p2", Name: "Tuna", Description: "Wild tuna", UnitPrice: decimal.New(990, -2), Stock: 5, ImageID: "img2"},
		},
		carts: make(map[string][]commerce.CartLine),
	}
}

func (f *fakeAPI) ListCatalog(context.Context) ([]commerce.Product, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.products, nil
}

func (f *fakeAPI) ProductImage(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("img")), nil
}

func (f *fakeAPI) AddCartItem(_ context.Context, cartID, productID string, quantity int) (commerce.CartSnapshot, error) {
	var product *commerce.Product
	for i := range f.products {
		if f.products[i].ID == productID {
			product = &f.products[i]
		}
	}
	if product == nil {
		return commerce.CartSnapshot{}, &commerce.UpstreamError{Op: "cart.add", Status: 404}
	}
	lines := f.carts[cartID]
	merged := false
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity += quantity
			lines[i].LineTotal = product.UnitPrice.Mul(decimal.NewFromInt(int64(lines[i].Quantity)))
			merged = true
		}
	}
	if !merged {
		lines = append(lines, commerce.CartLine{
			ID:        "item-" + productID,
			ProductID: productID,
			Name:      product.Name,
			Quantity:  quantity,
			UnitPrice: product.UnitPrice,
			LineTotal: product.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		})
	}
	f.carts[cartID] = lines
	return f.snapshot(cartID), nil
}

func (f *fakeAPI) Cart(_ context.Context, cartID string) (commerce.CartSnapshot, error) {
	if f.cartErr != nil {
		return commerce.CartSnapshot{}, f.cartErr
	}
	return f.snapshot(cartID), nil
}

func (f *fakeAPI) RemoveCartItem(_ context.Context, cartID, itemID string) error {
	lines := f.carts[cartID]
	kept := lines[:0]
	for _, line := range lines {
		if line.ID != itemID {
			kept = append(kept, line)
		}
	}
	f.carts[cartID] = kept
	return nil
}

func (f *fakeAPI) ClearCart(_ context.Context, cartID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	delete(f.carts, cartID)
	return nil
}

func (f *fakeAPI) CreateCustomer(_ context.Context, name, email string) (string, error) {
	f.customerCalls++
	f.lastCustomer.name = name
	f.lastCustomer.email = email
	return "cust-1", nil
}

func (f *fakeAPI) snapshot(cartID string) commerce.CartSnapshot {
	snap := commerce.CartSnapshot{Lines: f.carts[cartID]}
	for _, line := range snap.Lines {
		snap.Total = snap.Total.Add(line.LineTotal)
	}
	return snap
}

func action(key, payload string) Event {
	return Event{Kind: EventAction, Action: key, Payload: payload}
}

func text(s string) Event {
	return Event{Kind: EventText, Text: s, SenderName: "John Doe"}
}

func freshChat() session.Chat {
	return session.NewChat(42)
}

func newTestMachine(api *fakeAPI) *Machine {
	return NewMachine(api, session.NewMemoryStore())
}

func TestStartEntersMenu(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()

	out, err := m.Transition(context.Background(), &chat, text("/start"))
	require.NoError(t, err)

	assert.Equal(t, session.StateMenu, chat.State)
	assert.Contains(t, out.Screen.Text, "pick a product")

	var labels []string
	for _, row := range out.Screen.Rows {
		for _, a := range row {
			labels = append(labels, a.Label)
		}
	}
	assert.Contains(t, labels, "Salmon")
	assert.Contains(t, labels, "Tuna")
	assert.Contains(t, labels, "Cart")
}

func TestMenuSelectProduct(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()
	chat.State = session.StateMenu

	out, err := m.Transition(context.Background(), &chat, action(view.ActionProduct, "p1"))
	require.NoError(t, err)

	assert.Equal(t, session.StateDescription, chat.State)
	assert.Equal(t, "p1", chat.SelectedProductID)
	assert.Contains(t, out.Screen.Text, "Salmon")
	assert.Contains(t, out.Screen.Text, "$12.50 per 1 kg")
	assert.Contains(t, out.Screen.Text, "20 kg in stock")

	var labels []string
	for _, a := range out.Screen.Rows[0] {
		labels = append(labels, a.Label)
	}
	assert.Equal(t, []string{"1 kg", "5 kg", "10 kg"}, labels)
}

func TestDescriptionAddQuantity(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()
	chat.State = session.StateDescription
	chat.SelectedProductID = "p1"

	out, err := m.Transition(context.Background(), &chat, action(view.ActionQty, "5"))
	require.NoError(t, err)

	assert.Equal(t, session.StateDescription, chat.State)
	assert.Contains(t, out.Screen.Text, "5 kg in cart")

	snap := api.snapshot("42")
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "p1", snap.Lines[0].ProductID)
	assert.Equal(t, 5, snap.Lines[0].Quantity)
}

func TestDescriptionRejectsUnknownQuantity(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()
	chat.State = session.StateDescription
	chat.SelectedProductID = "p1"

	_, err := m.Transition(context.Background(), &chat, action(view.ActionQty, "7"))
	require.NoError(t, err)

	assert.Equal(t, session.StateMenu, chat.State)
	assert.Empty(t, api.snapshot("42").Lines)
}

func TestCartRemoveLine(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()
	chat.State = session.StateDescription
	chat.SelectedProductID = "p1"

	_, err := m.Transition(context.Background(), &chat, action(view.ActionQty, "1"))
	require.NoError(t, err)
	_, err = m.Transition(context.Background(), &chat, action(view.ActionCart, ""))
	require.NoError(t, err)
	require.Equal(t, session.StateCart, chat.State)

	out, err := m.Transition(context.Background(), &chat, action(view.ActionRemove, "item-p1"))
	require.NoError(t, err)

	assert.Equal(t, session.StateCart, chat.State)
	assert.Contains(t, out.Screen.Text, "cart is empty")
}

func TestCheckoutFlowInvalidEmail(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()
	chat.State = session.StateCart

	out, err := m.Transition(context.Background(), &chat, action(view.ActionCheckout, ""))
	require.NoError(t, err)
	assert.Equal(t, session.StateWaitingEmail, chat.State)
	assert.Contains(t, out.Screen.Text, "send your email")

	out, err = m.Transition(context.Background(), &chat, text("bad-email"))
	require.NoError(t, err)
	assert.Equal(t, session.StateWaitingEmail, chat.State)
	assert.Equal(t, "bad-email", chat.PendingEmail)
	assert.Contains(t, out.Screen.Text, "Is it correct?")

	out, err = m.Transition(context.Background(), &chat, action(view.ActionEmailOK, ""))
	require.NoError(t, err)
	assert.Equal(t, session.StateWaitingEmail, chat.State)
	assert.Contains(t, out.Screen.Text, "does not look like a valid email")
	assert.Zero(t, api.customerCalls)
}

func TestCheckoutFlowValidEmail(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()
	chat.State = session.StateDescription
	chat.SelectedProductID = "p1"

	_, err := m.Transition(context.Background(), &chat, action(view.ActionQty, "5"))
	require.NoError(t, err)

	chat.State = session.StateCart
	_, err = m.Transition(context.Background(), &chat, action(view.ActionCheckout, ""))
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), &chat, text("user@example.com"))
	require.NoError(t, err)

	out, err := m.Transition(context.Background(), &chat, Event{
		Kind: EventAction, Action: view.ActionEmailOK, SenderName: "John Doe",
	})
	require.NoError(t, err)

	assert.Equal(t, session.StateMenu, chat.State)
	assert.Equal(t, "cust-1", chat.CustomerID)
	assert.Equal(t, 1, api.customerCalls)
	assert.Equal(t, "John Doe", api.lastCustomer.name)
	assert.Equal(t, "user@example.com", api.lastCustomer.email)
	assert.Empty(t, api.snapshot("42").Lines)
	assert.NotEmpty(t, out.Notice)
}

func TestCheckoutCustomerCreatedOnce(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()
	chat.CustomerID = "cust-existing"
	chat.State = session.StateWaitingEmail
	chat.PendingEmail = "user@example.com"

	_, err := m.Transition(context.Background(), &chat, action(view.ActionEmailOK, ""))
	require.NoError(t, err)

	assert.Equal(t, session.StateMenu, chat.State)
	assert.Equal(t, "cust-existing", chat.CustomerID)
	assert.Zero(t, api.customerCalls)
}

func TestCheckoutPersistsCustomerBeforeCartClear(t *testing.T) {
	api := newFakeAPI()
	api.clearErr = &commerce.UpstreamError{Op: "cart.remove_all", Status: 502}
	store := session.NewMemoryStore()
	m := NewMachine(api, store)
	ctx := context.Background()

	chat := freshChat()
	chat.State = session.StateWaitingEmail
	chat.PendingEmail = "user@example.com"
	require.NoError(t, store.PutChat(ctx, chat))

	_, err := m.Transition(ctx, &chat, action(view.ActionEmailOK, ""))
	require.Error(t, err)
	assert.Equal(t, 1, api.customerCalls)

	// The event failed after the customer was created; the id must already
	// be on record so a replay cannot create a second customer.
	stored, err := store.Chat(ctx, chat.ChatID)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", stored.CustomerID)

	api.clearErr = nil
	chat = stored
	_, err = m.Transition(ctx, &chat, action(view.ActionEmailOK, ""))
	require.NoError(t, err)
	assert.Equal(t, 1, api.customerCalls)
	assert.Equal(t, session.StateMenu, chat.State)
}

func TestConfirmWithoutPendingEmail(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()
	chat.State = session.StateWaitingEmail

	out, err := m.Transition(context.Background(), &chat, action(view.ActionEmailOK, ""))
	require.NoError(t, err)

	assert.Equal(t, session.StateWaitingEmail, chat.State)
	assert.Contains(t, out.Screen.Text, "send your email")
	assert.Zero(t, api.customerCalls)
}

func TestEmailBadRestartsPrompt(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()
	chat.State = session.StateWaitingEmail
	chat.PendingEmail = "user@example.com"

	out, err := m.Transition(context.Background(), &chat, action(view.ActionEmailBad, ""))
	require.NoError(t, err)

	assert.Equal(t, session.StateWaitingEmail, chat.State)
	assert.Empty(t, chat.PendingEmail)
	assert.Contains(t, out.Screen.Text, "send your email")
}

func TestUpstreamErrorKeepsState(t *testing.T) {
	api := newFakeAPI()
	api.cartErr = &commerce.UpstreamError{Op: "cart.get", Status: 502}
	m := newTestMachine(api)
	chat := freshChat()
	chat.State = session.StateMenu

	_, err := m.Transition(context.Background(), &chat, action(view.ActionCart, ""))
	require.Error(t, err)

	assert.Equal(t, session.StateMenu, chat.State)
}

func TestStateAlwaysDefined(t *testing.T) {
	api := newFakeAPI()
	m := newTestMachine(api)
	chat := freshChat()

	events := []Event{
		text("/start"),
		action(view.ActionProduct, "p1"),
		action(view.ActionQty, "10"),
		action("bogus", "x"),
		action(view.ActionCart, ""),
		action(view.ActionCheckout, ""),
		text("someone@example.com"),
		action(view.ActionEmailOK, ""),
		action(view.ActionMenu, ""),
		text("hello?"),
	}
	for i, ev := range events {
		_, err := m.Transition(context.Background(), &chat, ev)
		require.NoError(t, err, "event %d", i)
		assert.True(t, chat.State.Valid(), "event %d left state %q", i, chat.State)
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"user@example.com", "a.b+c@sub.domain.org"}
	invalid := []string{"", "bad-email", "user@localhost", "user example@x.com", "Name <user@example.com>"}

	for _, s := range valid {
		assert.True(t, ValidEmail(s), s)
	}
	for _, s := range invalid {
		assert.False(t, ValidEmail(s), s)
	}
}
