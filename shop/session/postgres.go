package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

const commerceTokenKey = "commerce_access_token"

// PostgresStore persists sessions in the chat_sessions table and the shared
// token in kv_cache. Schema is managed by the migrations directory.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Chat loads the stored record, or the StateStart default when no row exists.
func (s *PostgresStore) Chat(ctx context.Context, chatID int64) (Chat, error) {
	var chat Chat
	err := s.db.GetContext(ctx, &chat, `
		SELECT chat_id, state, pending_email, selected_product_id,
		       customer_id, last_message_id, updated_at
		FROM chat_sessions
		WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewChat(chatID), nil
	}
	if err != nil {
		return Chat{}, &StoreUnavailable{Op: "chat.get", Err: err}
	}
	if !chat.State.Valid() {
		// Unknown state value left by an older build; restart the dialogue.
		chat.State = StateStart
	}
	return chat, nil
}

// PutChat upserts the full record, last writer wins.
func (s *PostgresStore) PutChat(ctx context.Context, chat Chat) error {
	chat.UpdatedAt = time.Now().UTC()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO chat_sessions
			(chat_id, state, pending_email, selected_product_id,
			 customer_id, last_message_id, updated_at)
		VALUES
			(:chat_id, :state, :pending_email, :selected_product_id,
			 :customer_id, :last_message_id, :updated_at)
		ON CONFLICT (chat_id) DO UPDATE SET
			state = EXCLUDED.state,
			pending_email = EXCLUDED.pending_email,
			selected_product_id = EXCLUDED.selected_product_id,
			customer_id = EXCLUDED.customer_id,
			last_message_id = EXCLUDED.last_message_id,
			updated_at = EXCLUDED.updated_at`, chat)
	if err != nil {
		return &StoreUnavailable{Op: "chat.put", Err: err}
	}
	return nil
}

// DeleteChat removes the chat record.
func (s *PostgresStore) DeleteChat(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE chat_id = $1`, chatID); err != nil {
		return &StoreUnavailable{Op: "chat.delete", Err: err}
	}
	return nil
}

// Token returns the cached commerce token; expired entries read as absent.
func (s *PostgresStore) Token(ctx context.Context) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, `
		SELECT value FROM kv_cache
		WHERE key = $1 AND expires_at > NOW()`, commerceTokenKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &StoreUnavailable{Op: "token.get", Err: err}
	}
	return value, nil
}

// PutToken stores the token with the given lifetime.
func (s *PostgresStore) PutToken(ctx context.Context, value string, ttl time.Duration) error {
	expiresAt := time.Now().UTC().Add(ttl)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_cache (key, value, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			expires_at = EXCLUDED.expires_at`,
		commerceTokenKey, value, expiresAt)
	if err != nil {
		return &StoreUnavailable{Op: "token.put", Err: err}
	}
	return nil
}
