package app

import (
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/shop/dialog"
	"github.com/m3rciful/shopbot/shop/session"

	"log/slog"
)

// Dispatcher funnels every inbound update through the conversation machine:
// load session, transition, deliver the screen, persist. Events for the same
// chat are serialized with a per-chat lock; different chats proceed
// concurrently.
type Dispatcher struct {
	machine *dialog.Machine
	store   session.Store
	deliver *deliverer

	mu    sync.Mutex
	locks map[int64]*chatLock
}

// chatLock is a refcounted per-chat mutex. Entries are dropped from the map
// once no handler holds or waits on them, so the map only ever tracks chats
// with in-flight updates.
type chatLock struct {
	mu   sync.Mutex
	refs int
}

// newDispatcher wires the machine to its store and delivery adapter.
func newDispatcher(machine *dialog.Machine, store session.Store, deliver *deliverer) *Dispatcher {
	return &Dispatcher{
		machine: machine,
		store:   store,
		deliver: deliver,
		locks:   make(map[int64]*chatLock),
	}
}

// HandleStart serves the /start command: unconditional restart into the menu
// from any state.
func (d *Dispatcher) HandleStart(c tele.Context) error {
	return d.handle(c, dialog.Event{Kind: dialog.EventText, Text: c.Text(), SenderName: senderName(c)}, true)
}

// HandleText serves free-text messages.
func (d *Dispatcher) HandleText(c tele.Context) error {
	return d.handle(c, dialog.Event{
		Kind:       dialog.EventText,
		Text:       c.Text(),
		SenderName: senderName(c),
	}, false)
}

// HandleCallback serves button presses. Unknown keys flow through as well;
// the machine treats them as fall-through input.
func (d *Dispatcher) HandleCallback(c tele.Context) error {
	return d.handle(c, dialog.Event{
		Kind:       dialog.EventAction,
		Action:     callbacks.CallbackKey(c),
		Payload:    callbacks.CallbackPayload(c),
		SenderName: senderName(c),
	}, false)
}

func (d *Dispatcher) handle(c tele.Context, ev dialog.Event, reset bool) error {
	if c.Chat() == nil {
		return nil
	}
	chatID := c.Chat().ID

	release := d.acquireChat(chatID)
	defer release()

	ctx := tghelpers.BuildContext(c)

	chat, err := d.store.Chat(ctx, chatID)
	if err != nil {
		return err
	}
	if reset {
		chat = resetChat(chat)
	}

	out, err := d.machine.Transition(ctx, &chat, ev)
	if err != nil {
		// State stays put; the next event replays from the stored state.
		return err
	}

	if out.Notice != "" {
		if nerr := tghelpers.SendText(c, out.Notice); nerr != nil {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "notice.enqueue_failed",
				slog.String("err", nerr.Error()),
			)
		}
	}

	msgID, err := d.deliver.Screen(ctx, c, out.Screen, chat.LastMessageID)
	if err != nil {
		return err
	}
	chat.LastMessageID = msgID

	return d.store.PutChat(ctx, chat)
}

// resetChat is the /start restart: dialogue scratch fields go back to their
// defaults, but the identifiers that outlive a conversation stay — the
// customer record is created at most once per chat, and the prior screen
// still needs deleting.
func resetChat(chat session.Chat) session.Chat {
	fresh := session.NewChat(chat.ChatID)
	fresh.CustomerID = chat.CustomerID
	fresh.LastMessageID = chat.LastMessageID
	return fresh
}

// acquireChat serializes events for one chat and returns the release
// function. The last holder to release removes the map entry.
func (d *Dispatcher) acquireChat(chatID int64) func() {
	d.mu.Lock()
	lock, ok := d.locks[chatID]
	if !ok {
		lock = &chatLock{}
		d.locks[chatID] = lock
	}
	lock.refs++
	d.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		d.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(d.locks, chatID)
		}
		d.mu.Unlock()
	}
}

func senderName(c tele.Context) string {
	sender := c.Sender()
	if sender == nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimSpace(sender.FirstName) + " " + strings.TrimSpace(sender.LastName))
}
