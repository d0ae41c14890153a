package chat

import (
	"encoding/json"
	"log/slog"
	"sync"

	"go-vitalchat/internal/infrastructure/realtime"
)

// Adapter subscribes to the fixed realtime event vocabulary and forwards
// each payload to the corresponding Store operation. It carries no
// business logic of its own; it is purely a translation layer from wire
// payload shape to normalized Store calls.
type Adapter struct {
	store *Store
	log   *slog.Logger

	mu     sync.Mutex
	unsubs []func()
}

func NewAdapter(store *Store, log *slog.Logger) *Adapter {
	return &Adapter{store: store, log: log}
}

// Bind registers the event handlers on t. Calling Bind again (after a
// reconnect, say) first releases the previous registrations, so repeated
// binding never causes duplicate event handling.
func (a *Adapter) Bind(t realtime.Transport) {
	a.Release()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.unsubs = []func(){
		t.On(EventMessage, a.onMessage),
		t.On(EventUnreadCount, a.onUnreadCount),
		t.On(EventUserOnline, a.onPresence(true)),
		t.On(EventUserOffline, a.onPresence(false)),
	}
}

// Release drops all event registrations. Releasing twice is a no-op.
func (a *Adapter) Release() {
	a.mu.Lock()
	unsubs := a.unsubs
	a.unsubs = nil
	a.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

func (a *Adapter) onMessage(data json.RawMessage) {
	var p MessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		a.log.Warn("discarding malformed message event", slog.Any("error", err))
		return
	}
	a.store.ReceiveInbound(p)
}

func (a *Adapter) onUnreadCount(data json.RawMessage) {
	var p UnreadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		a.log.Warn("discarding malformed unread-count event", slog.Any("error", err))
		return
	}
	a.store.BumpUnread(p.UserID, p.Count)
}

func (a *Adapter) onPresence(online bool) realtime.Handler {
	return func(data json.RawMessage) {
		var p PresencePayload
		if err := json.Unmarshal(data, &p); err != nil {
			a.log.Warn("discarding malformed presence event", slog.Any("error", err))
			return
		}
		a.store.SetUserOnline(p.UserID, online)
	}
}
