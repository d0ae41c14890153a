package devserver

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"go-vitalchat/internal/infrastructure/realtime"
)

// hub tracks one active connection per user and fans events out to them.
// A fresh socket for a user replaces and closes the previous one.
type hub struct {
	mu    sync.RWMutex
	byID  map[string]*conn // connection id -> conn
	users map[string]string // user id -> connection id
}

func newHub() *hub {
	return &hub{
		byID:  make(map[string]*conn),
		users: make(map[string]string),
	}
}

func (h *hub) attach(c *conn) {
	var previous *conn

	h.mu.Lock()
	if existingID, ok := h.users[c.userID]; ok {
		if existing := h.byID[existingID]; existing != nil {
			previous = existing
			delete(h.byID, existingID)
		}
	}
	h.byID[c.id] = c
	h.users[c.userID] = c.id
	h.mu.Unlock()

	c.start()

	if previous != nil {
		previous.shutdown(4001, "session replaced")
	}
}

// detach removes c and reports whether it was still the user's current
// connection. A connection displaced by a newer session returns false,
// so its teardown must not announce the user as offline.
func (h *hub) detach(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byID, c.id)
	if current, ok := h.users[c.userID]; ok && current == c.id {
		delete(h.users, c.userID)
		return true
	}
	return false
}

// notifyUser delivers one event to the user's current connection.
// Returns false when the user has no live socket.
func (h *hub) notifyUser(userID, event string, payload any) bool {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return false
	}

	h.mu.RLock()
	var target *conn
	if id, ok := h.users[userID]; ok {
		target = h.byID[id]
	}
	h.mu.RUnlock()

	if target == nil {
		return false
	}
	return target.deliver(frame) == nil
}

// broadcast delivers one event to every connection except excludeUserID.
func (h *hub) broadcast(event string, payload any, excludeUserID string) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.byID))
	for _, c := range h.byID {
		if excludeUserID != "" && c.userID == excludeUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		_ = c.deliver(frame)
	}
}

func (h *hub) shutdownAll() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.byID))
	for _, c := range h.byID {
		conns = append(conns, c)
	}
	h.byID = make(map[string]*conn)
	h.users = make(map[string]string)
	h.mu.Unlock()

	for _, c := range conns {
		c.shutdown(websocket.CloseGoingAway, "server shutdown")
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(realtime.Envelope{Event: event, Data: data})
}
