package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatDefaultsToStart(t *testing.T) {
	store := NewMemoryStore()

	chat, err := store.Chat(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(7), chat.ChatID)
	assert.Equal(t, StateStart, chat.State)
	assert.Empty(t, chat.PendingEmail)
	assert.Empty(t, chat.CustomerID)
}

func TestChatRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	chat := NewChat(7)
	chat.State = StateWaitingEmail
	chat.PendingEmail = "user@example.com"
	chat.SelectedProductID = "p1"
	chat.LastMessageID = 1234
	require.NoError(t, store.PutChat(ctx, chat))

	got, err := store.Chat(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StateWaitingEmail, got.State)
	assert.Equal(t, "user@example.com", got.PendingEmail)
	assert.Equal(t, "p1", got.SelectedProductID)
	assert.Equal(t, 1234, got.LastMessageID)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestDeleteChat(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.PutChat(ctx, Chat{ChatID: 7, State: StateCart}))
	require.NoError(t, store.DeleteChat(ctx, 7))

	got, err := store.Chat(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StateStart, got.State)
}

func TestTokenExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	token, err := store.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, store.PutToken(ctx, "secret", time.Hour))

	token, err = store.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", token)

	now = now.Add(2 * time.Hour)
	token, err = store.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestStateValid(t *testing.T) {
	for _, s := range []State{StateStart, StateMenu, StateDescription, StateCart, StateWaitingEmail} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, State("SOMETHING_ELSE").Valid())
	assert.False(t, State("").Valid())
}
