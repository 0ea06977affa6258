// Package dialog implements the conversation state machine: the decision
// logic mapping (state, event, session, commerce data) onto the next state
// and the screen to show.
package dialog

import (
	"context"
	"net/mail"
	"strconv"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/commerce"
	"github.com/m3rciful/shopbot/shop/session"
	"github.com/m3rciful/shopbot/shop/view"

	"log/slog"
)

// EventKind separates free-text messages from button selections.
type EventKind int

const (
	// EventText is a plain text message from the user.
	EventText EventKind = iota
	// EventAction is a button press carrying an action key and payload.
	EventAction
)

// Event is one inbound user interaction.
type Event struct {
	Kind    EventKind
	Text    string
	Action  string
	Payload string
	// SenderName is the user's display name, used once for customer creation.
	SenderName string
}

// Outcome is what a transition produced: the screen to render and an
// optional one-off notice sent before it. The session mutations are applied
// to the Chat passed into Transition; the caller persists them after
// delivery.
type Outcome struct {
	Screen view.Screen
	Notice string
}

// Machine drives the dialogue. It is stateless; all per-chat data lives in
// the session record. The store is only written directly for the customer id,
// which must survive even when the rest of the event fails.
type Machine struct {
	api   commerce.API
	store session.Store
}

// NewMachine binds the machine to its commerce backend and session store.
func NewMachine(api commerce.API, store session.Store) *Machine {
	return &Machine{api: api, store: store}
}

// Transition processes one event for one chat. It mutates chat in place
// (next state, scratch fields) and returns the screen to deliver. On error
// chat must be considered unchanged and not persisted — the next event
// replays from the stored state. The one exception is the customer id, which
// checkout stores itself as soon as it is created.
func (m *Machine) Transition(ctx context.Context, chat *session.Chat, ev Event) (Outcome, error) {
	from := chat.State
	out, err := m.dispatch(ctx, chat, ev)
	if err != nil {
		return Outcome{}, err
	}
	logger.Debug(ctx, "dialog", "transition",
		slog.String("state", string(from)),
		slog.String("next_state", string(chat.State)),
		slog.String("action", ev.Action),
	)
	return out, nil
}

func (m *Machine) dispatch(ctx context.Context, chat *session.Chat, ev Event) (Outcome, error) {
	switch chat.State {
	case session.StateMenu:
		return m.onMenu(ctx, chat, ev)
	case session.StateDescription:
		return m.onDescription(ctx, chat, ev)
	case session.StateCart:
		return m.onCart(ctx, chat, ev)
	case session.StateWaitingEmail:
		return m.onWaitingEmail(ctx, chat, ev)
	default:
		// StateStart and anything unrecognized enter the menu.
		return m.showMenu(ctx, chat)
	}
}

func (m *Machine) onMenu(ctx context.Context, chat *session.Chat, ev Event) (Outcome, error) {
	switch {
	case ev.Action == view.ActionCart:
		return m.showCart(ctx, chat)
	case ev.Action == view.ActionProduct && ev.Payload != "":
		return m.showDescription(ctx, chat, ev.Payload)
	default:
		return m.showMenu(ctx, chat)
	}
}

func (m *Machine) onDescription(ctx context.Context, chat *session.Chat, ev Event) (Outcome, error) {
	switch ev.Action {
	case view.ActionQty:
		qty, err := strconv.Atoi(ev.Payload)
		if err != nil || !allowedQuantity(qty) || chat.SelectedProductID == "" {
			return m.showMenu(ctx, chat)
		}
		if _, err := m.api.AddCartItem(ctx, cartID(chat), chat.SelectedProductID, qty); err != nil {
			return Outcome{}, err
		}
		return m.showDescription(ctx, chat, chat.SelectedProductID)
	case view.ActionCart:
		return m.showCart(ctx, chat)
	default:
		return m.showMenu(ctx, chat)
	}
}

func (m *Machine) onCart(ctx context.Context, chat *session.Chat, ev Event) (Outcome, error) {
	switch ev.Action {
	case view.ActionRemove:
		if ev.Payload != "" {
			if err := m.api.RemoveCartItem(ctx, cartID(chat), ev.Payload); err != nil {
				return Outcome{}, err
			}
		}
		return m.showCart(ctx, chat)
	case view.ActionMenu:
		return m.showMenu(ctx, chat)
	default:
		// Checkout, and any unexpected input, start the email flow.
		chat.State = session.StateWaitingEmail
		chat.PendingEmail = ""
		return Outcome{Screen: view.EmailPrompt()}, nil
	}
}

func (m *Machine) onWaitingEmail(ctx context.Context, chat *session.Chat, ev Event) (Outcome, error) {
	switch {
	case ev.Kind == EventAction && ev.Action == view.ActionEmailBad:
		chat.PendingEmail = ""
		return Outcome{Screen: view.EmailPrompt()}, nil

	case ev.Kind == EventAction && ev.Action == view.ActionEmailOK:
		email := strings.TrimSpace(chat.PendingEmail)
		if email == "" {
			return Outcome{Screen: view.EmailPrompt()}, nil
		}
		if !ValidEmail(email) {
			chat.PendingEmail = ""
			return Outcome{Screen: view.EmailInvalid(email)}, nil
		}
		return m.checkout(ctx, chat, email, ev.SenderName)

	case ev.Kind == EventText && strings.TrimSpace(ev.Text) != "":
		chat.PendingEmail = strings.TrimSpace(ev.Text)
		return Outcome{Screen: view.EmailConfirm(chat.PendingEmail)}, nil

	default:
		if chat.PendingEmail != "" {
			return Outcome{Screen: view.EmailConfirm(chat.PendingEmail)}, nil
		}
		return Outcome{Screen: view.EmailPrompt()}, nil
	}
}

// checkout creates the customer record at most once per chat, clears the
// cart and returns to the menu.
func (m *Machine) checkout(ctx context.Context, chat *session.Chat, email, senderName string) (Outcome, error) {
	if chat.CustomerID == "" {
		name := strings.TrimSpace(senderName)
		if name == "" {
			name = email
		}
		customerID, err := m.api.CreateCustomer(ctx, name, email)
		if err != nil {
			return Outcome{}, err
		}
		chat.CustomerID = customerID
		logger.Info(ctx, "dialog", "customer.created",
			slog.Int64("chat_id", chat.ChatID),
			slog.String("customer_id", customerID),
		)
		// Persist right away: if a later step of the checkout fails, the
		// event aborts unpersisted and a retry must find the id, not create
		// a second customer.
		if perr := m.store.PutChat(ctx, *chat); perr != nil {
			logger.Warn(ctx, "dialog", "customer.persist_failed",
				slog.Int64("chat_id", chat.ChatID),
				slog.String("err", perr.Error()),
			)
		}
	}
	if err := m.api.ClearCart(ctx, cartID(chat)); err != nil {
		return Outcome{}, err
	}
	chat.PendingEmail = ""

	out, err := m.showMenu(ctx, chat)
	if err != nil {
		return Outcome{}, err
	}
	out.Notice = "Expect an order confirmation by email"
	return out, nil
}

func (m *Machine) showMenu(ctx context.Context, chat *session.Chat) (Outcome, error) {
	products, err := m.api.ListCatalog(ctx)
	if err != nil {
		return Outcome{}, err
	}
	chat.State = session.StateMenu
	chat.SelectedProductID = ""
	return Outcome{Screen: view.Menu(products)}, nil
}

func (m *Machine) showCart(ctx context.Context, chat *session.Chat) (Outcome, error) {
	snapshot, err := m.api.Cart(ctx, cartID(chat))
	if err != nil {
		return Outcome{}, err
	}
	chat.State = session.StateCart
	chat.SelectedProductID = ""
	return Outcome{Screen: view.Cart(snapshot)}, nil
}

func (m *Machine) showDescription(ctx context.Context, chat *session.Chat, productID string) (Outcome, error) {
	products, err := m.api.ListCatalog(ctx)
	if err != nil {
		return Outcome{}, err
	}
	var product *commerce.Product
	for i := range products {
		if products[i].ID == productID {
			product = &products[i]
			break
		}
	}
	if product == nil {
		// The product left the catalog between renders.
		return m.showMenu(ctx, chat)
	}

	snapshot, err := m.api.Cart(ctx, cartID(chat))
	if err != nil {
		return Outcome{}, err
	}

	chat.State = session.StateDescription
	chat.SelectedProductID = productID
	return Outcome{Screen: view.Description(*product, snapshot.QuantityOf(productID))}, nil
}

func allowedQuantity(kg int) bool {
	return kg == 1 || kg == 5 || kg == 10
}

// cartID renders the chat id as the backend cart identifier.
func cartID(chat *session.Chat) string {
	return strconv.FormatInt(chat.ChatID, 10)
}

// ValidEmail checks the checkout address. mail.ParseAddress accepts local
// domains, so the host part must also contain a dot.
func ValidEmail(address string) bool {
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return false
	}
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return false
	}
	return strings.Contains(address[at+1:], ".")
}
