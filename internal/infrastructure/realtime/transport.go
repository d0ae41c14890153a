package realtime

import "encoding/json"

// Envelope is the wire frame for every realtime event, in both
// directions: a stable event name plus an opaque payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Handler consumes the payload of one inbound event.
type Handler func(data json.RawMessage)

// Transport is the publish/subscribe socket primitive the chat layer is
// written against. Registration is idempotent per event name: calling On
// twice for the same event replaces the handler rather than doubling
// delivery, so re-binding after a reconnect is safe.
type Transport interface {
	// Emit sends one event, fire-and-forget.
	Emit(event string, payload any) error

	// On registers the handler for event and returns an unsubscribe
	// handle. Unsubscribing twice is a no-op.
	On(event string, h Handler) (unsubscribe func())

	// Close tears the transport down. Further Emit calls fail.
	Close() error
}
