// Package session persists per-chat dialogue state and the shared commerce
// token so conversations survive process restarts.
package session

import (
	"context"
	"fmt"
	"time"
)

// State names the dialogue mode a chat is currently in.
type State string

const (
	StateStart        State = "START"
	StateMenu         State = "HANDLE_MENU"
	StateDescription  State = "HANDLE_DESCRIPTION"
	StateCart         State = "HANDLE_CART"
	StateWaitingEmail State = "WAITING_EMAIL"
)

// Valid reports whether s is one of the defined dialogue states.
func (s State) Valid() bool {
	switch s {
	case StateStart, StateMenu, StateDescription, StateCart, StateWaitingEmail:
		return true
	}
	return false
}

// Chat is the persisted per-conversation record. An absent record is
// equivalent to a fresh chat in StateStart.
type Chat struct {
	ChatID int64 `db:"chat_id"`
	State  State `db:"state"`
	// PendingEmail holds an address awaiting user confirmation.
	PendingEmail string `db:"pending_email"`
	// SelectedProductID points at the product shown on the description screen.
	SelectedProductID string `db:"selected_product_id"`
	// CustomerID is set once after the first successful checkout and never
	// overwritten.
	CustomerID string `db:"customer_id"`
	// LastMessageID is the id of the bot's previous screen message; it is
	// deleted before the next screen is sent.
	LastMessageID int       `db:"last_message_id"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// NewChat returns the default record for a chat with no stored session.
func NewChat(chatID int64) Chat {
	return Chat{ChatID: chatID, State: StateStart}
}

// Store is the session persistence contract. Chat reads return the default
// record when no row exists; writes are full overwrites, last writer wins.
type Store interface {
	Chat(ctx context.Context, chatID int64) (Chat, error)
	PutChat(ctx context.Context, chat Chat) error
	DeleteChat(ctx context.Context, chatID int64) error

	// Token returns the cached commerce bearer token, "" when absent or
	// expired.
	Token(ctx context.Context) (string, error)
	PutToken(ctx context.Context, value string, ttl time.Duration) error
}

// StoreUnavailable reports a failed session read or write. The current event
// is aborted; the chat replays from its last persisted state on next contact.
type StoreUnavailable struct {
	Op  string
	Err error
}

func (e *StoreUnavailable) Error() string {
	return fmt.Sprintf("session store %s failed: %v", e.Op, e.Err)
}

func (e *StoreUnavailable) Unwrap() error { return e.Err }

// Code identifies the error class in handler summary logs.
func (e *StoreUnavailable) Code() string { return "STORE_UNAVAILABLE" }
