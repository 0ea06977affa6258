package view

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/shop/commerce"
)

func products() []commerce.Product {
	return []commerce.Product{
		{ID: "p1", Name: "Salmon", Description: "Fresh", UnitPrice: decimal.New(1250, -2), Stock: 20, ImageID: "img1"},
		{ID: "p2", Name: "Tuna", UnitPrice: decimal.New(990, -2), Stock: 5},
	}
}

func TestMenu(t *testing.T) {
	s := Menu(products())

	require.Len(t, s.Rows, 3)
	assert.Equal(t, "Salmon", s.Rows[0][0].Label)
	assert.Equal(t, ActionProduct, s.Rows[0][0].Key)
	assert.Equal(t, "p1", s.Rows[0][0].Payload)
	assert.Equal(t, ActionCart, s.Rows[2][0].Key)
	assert.Empty(t, s.ImageID)
}

func TestMenuSkipsUnnamedProducts(t *testing.T) {
	s := Menu([]commerce.Product{{ID: "p1"}, {Name: "ghost"}})

	// Only the trailing cart row survives.
	require.Len(t, s.Rows, 1)
	assert.Equal(t, ActionCart, s.Rows[0][0].Key)
}

func TestDescription(t *testing.T) {
	s := Description(products()[0], 0)

	assert.Contains(t, s.Text, "Salmon")
	assert.Contains(t, s.Text, "$12.50 per 1 kg")
	assert.Contains(t, s.Text, "20 kg in stock")
	assert.Contains(t, s.Text, "Fresh")
	assert.NotContains(t, s.Text, "in cart")
	assert.Equal(t, "img1", s.ImageID)

	require.Len(t, s.Rows, 3)
	require.Len(t, s.Rows[0], 3)
	assert.Equal(t, Action{Label: "5 kg", Key: ActionQty, Payload: "5"}, s.Rows[0][1])
	assert.Equal(t, ActionCart, s.Rows[1][0].Key)
	assert.Equal(t, ActionMenu, s.Rows[2][0].Key)
}

func TestDescriptionWithCartQuantity(t *testing.T) {
	s := Description(products()[1], 5)

	assert.Contains(t, s.Text, "5 kg in cart")
	// Missing description degrades to omission.
	assert.Contains(t, s.Text, "$9.90 per 1 kg")
}

func TestCartEmpty(t *testing.T) {
	s := Cart(commerce.CartSnapshot{})

	assert.Equal(t, "Your cart is empty", s.Text)
	require.Len(t, s.Rows, 1)
	assert.Equal(t, ActionMenu, s.Rows[0][0].Key)
}

func TestCart(t *testing.T) {
	snap := commerce.CartSnapshot{
		Lines: []commerce.CartLine{
			{
				ID:        "item-1",
				ProductID: "p1",
				Name:      "Salmon",
				Quantity:  5,
				UnitPrice: decimal.New(1250, -2),
				LineTotal: decimal.New(6250, -2),
			},
		},
		Total: decimal.New(6250, -2),
	}
	s := Cart(snap)

	assert.Contains(t, s.Text, "Salmon")
	assert.Contains(t, s.Text, "$12.50 per kg")
	assert.Contains(t, s.Text, "5 kg in cart for $62.50")
	assert.Contains(t, s.Text, "Total: $62.50")

	require.Len(t, s.Rows, 3)
	assert.Equal(t, Action{Label: "Remove Salmon", Key: ActionRemove, Payload: "item-1"}, s.Rows[0][0])
	assert.Equal(t, ActionMenu, s.Rows[1][0].Key)
	assert.Equal(t, ActionCheckout, s.Rows[2][0].Key)
}

func TestEmailScreens(t *testing.T) {
	prompt := EmailPrompt()
	assert.Contains(t, prompt.Text, "send your email")
	assert.Empty(t, prompt.Rows)

	confirm := EmailConfirm("user@example.com")
	assert.Contains(t, confirm.Text, "user@example.com")
	require.Len(t, confirm.Rows, 2)
	assert.Equal(t, ActionEmailOK, confirm.Rows[0][0].Key)
	assert.Equal(t, ActionEmailBad, confirm.Rows[1][0].Key)

	invalid := EmailInvalid("nope")
	assert.Contains(t, invalid.Text, "nope")
}
