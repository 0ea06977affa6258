package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Used in tests and in the
// memory backend mode; state does not survive restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	chats map[int64]Chat

	token       string
	tokenExpiry time.Time

	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats: make(map[int64]Chat),
		now:   time.Now,
	}
}

// Chat returns the stored record or the StateStart default when absent.
func (s *MemoryStore) Chat(_ context.Context, chatID int64) (Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if chat, ok := s.chats[chatID]; ok {
		return chat, nil
	}
	return NewChat(chatID), nil
}

// PutChat overwrites the chat record.
func (s *MemoryStore) PutChat(_ context.Context, chat Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat.UpdatedAt = s.now()
	s.chats[chat.ChatID] = chat
	return nil
}

// DeleteChat removes the chat record if present.
func (s *MemoryStore) DeleteChat(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, chatID)
	return nil
}

// Token returns the cached token, "" once expired.
func (s *MemoryStore) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.now().After(s.tokenExpiry) {
		return "", nil
	}
	return s.token, nil
}

// PutToken stores the token with its lifetime.
func (s *MemoryStore) PutToken(_ context.Context, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = value
	s.tokenExpiry = s.now().Add(ttl)
	return nil
}
