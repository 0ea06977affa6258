package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/m3rciful/shopbot/shop/session"
)

func TestResetChatKeepsCustomerAndLastMessage(t *testing.T) {
	chat := session.Chat{
		ChatID:            42,
		State:             session.StateWaitingEmail,
		PendingEmail:      "user@example.com",
		SelectedProductID: "p1",
		CustomerID:        "cust-existing",
		LastMessageID:     777,
	}

	fresh := resetChat(chat)

	assert.Equal(t, int64(42), fresh.ChatID)
	assert.Equal(t, session.StateStart, fresh.State)
	assert.Empty(t, fresh.PendingEmail)
	assert.Empty(t, fresh.SelectedProductID)

	// A restart must not forget who the customer is or which screen to
	// replace; otherwise the next checkout creates a duplicate customer.
	assert.Equal(t, "cust-existing", fresh.CustomerID)
	assert.Equal(t, 777, fresh.LastMessageID)
}

func TestChatLocksReleased(t *testing.T) {
	d := newDispatcher(nil, nil, nil)

	release := d.acquireChat(1)
	d.mu.Lock()
	assert.Len(t, d.locks, 1)
	d.mu.Unlock()

	release()
	d.mu.Lock()
	assert.Empty(t, d.locks)
	d.mu.Unlock()
}

func TestChatLocksSerializeSameChat(t *testing.T) {
	d := newDispatcher(nil, nil, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		peak    int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := d.acquireChat(42)
			defer release()

			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak)
	d.mu.Lock()
	assert.Empty(t, d.locks)
	d.mu.Unlock()
}
