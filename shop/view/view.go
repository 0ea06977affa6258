// Package view renders domain data into chat screens: message text plus an
// inline action menu. All functions are pure.
package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/m3rciful/shopbot/shop/commerce"
)

// Action keys carried in callback data. The payload meaning depends on the
// key: product id for ActionProduct, kilograms for ActionQty, cart-item id
// for ActionRemove.
const (
	ActionProduct  = "product"
	ActionCart     = "cart"
	ActionMenu     = "menu"
	ActionQty      = "qty"
	ActionRemove   = "remove"
	ActionCheckout = "checkout"
	ActionEmailOK  = "email_ok"
	ActionEmailBad = "email_bad"
)

// Action is one labeled choice offered to the user.
type Action struct {
	Label   string
	Key     string
	Payload string
}

// Screen is a renderable chat message: text (used as a photo caption when
// ImageID is set) plus rows of actions.
type Screen struct {
	Text    string
	ImageID string
	Rows    [][]Action
}

// Menu lists the catalog, one product per row, with the cart at the bottom.
func Menu(products []commerce.Product) Screen {
	rows := make([][]Action, 0, len(products)+1)
	for _, p := range products {
		if p.ID == "" || p.Name == "" {
			continue
		}
		rows = append(rows, []Action{{Label: p.Name, Key: ActionProduct, Payload: p.ID}})
	}
	rows = append(rows, []Action{{Label: "Cart", Key: ActionCart}})
	return Screen{Text: "Please pick a product:", Rows: rows}
}

// Description shows one product with price, stock and quantity choices.
// inCartKg > 0 adds the current in-cart amount to the text.
func Description(p commerce.Product, inCartKg int) Screen {
	var b strings.Builder
	b.WriteString(p.Name)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "$%s per 1 kg\n", p.UnitPrice.StringFixed(2))
	fmt.Fprintf(&b, "%d kg in stock\n", p.Stock)
	if inCartKg > 0 {
		fmt.Fprintf(&b, "%d kg in cart\n", inCartKg)
	}
	if p.Description != "" {
		b.WriteString("\n")
		b.WriteString(p.Description)
	}

	qtyRow := make([]Action, 0, 3)
	for _, kg := range []int{1, 5, 10} {
		qtyRow = append(qtyRow, Action{
			Label:   fmt.Sprintf("%d kg", kg),
			Key:     ActionQty,
			Payload: strconv.Itoa(kg),
		})
	}

	return Screen{
		Text:    b.String(),
		ImageID: p.ImageID,
		Rows: [][]Action{
			qtyRow,
			{{Label: "Cart", Key: ActionCart}},
			{{Label: "Back", Key: ActionMenu}},
		},
	}
}

// Cart renders the cart contents with per-line removal. The checkout action
// appears only when the cart is non-empty.
func Cart(snapshot commerce.CartSnapshot) Screen {
	if snapshot.Empty() {
		return Screen{
			Text: "Your cart is empty",
			Rows: [][]Action{{{Label: "Back to menu", Key: ActionMenu}}},
		}
	}

	var b strings.Builder
	rows := make([][]Action, 0, len(snapshot.Lines)+2)
	for _, line := range snapshot.Lines {
		b.WriteString(line.Name)
		b.WriteString("\n")
		if line.Description != "" {
			b.WriteString(line.Description)
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "$%s per kg\n", line.UnitPrice.StringFixed(2))
		fmt.Fprintf(&b, "%d kg in cart for $%s\n\n", line.Quantity, line.LineTotal.StringFixed(2))

		rows = append(rows, []Action{{
			Label:   "Remove " + line.Name,
			Key:     ActionRemove,
			Payload: line.ID,
		}})
	}
	fmt.Fprintf(&b, "Total: $%s", snapshot.Total.StringFixed(2))

	rows = append(rows,
		[]Action{{Label: "Back to menu", Key: ActionMenu}},
		[]Action{{Label: "Checkout", Key: ActionCheckout}},
	)
	return Screen{Text: b.String(), Rows: rows}
}

// EmailPrompt asks for the checkout email address.
func EmailPrompt() Screen {
	return Screen{Text: "Please send your email"}
}

// EmailConfirm asks the user to confirm the address they sent.
func EmailConfirm(email string) Screen {
	return Screen{
		Text: fmt.Sprintf("You sent this email: %s\nIs it correct?", email),
		Rows: [][]Action{
			{{Label: "Correct", Key: ActionEmailOK}},
			{{Label: "Incorrect", Key: ActionEmailBad}},
		},
	}
}

// EmailInvalid re-prompts after a failed address validation.
func EmailInvalid(email string) Screen {
	return Screen{
		Text: fmt.Sprintf("%q does not look like a valid email.\nPlease send your email again", email),
	}
}
