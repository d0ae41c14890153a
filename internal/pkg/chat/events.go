package chat

import "time"

// Realtime event vocabulary. Inbound events are translated into store
// mutations by the Adapter; outbound events are emitted by the store.
const (
	// inbound
	EventMessage     = "message"
	EventUnreadCount = "unread-count"
	EventUserOnline  = "user-online"
	EventUserOffline = "user-offline"

	// outbound
	EventJoin        = "join"
	EventReadReceipt = "read-receipt"
	EventLogin       = "login"
	EventLogout      = "logout"
)

// MessagePayload is the wire shape of a chat message event, both
// directions.
type MessagePayload struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sentAt"`
	Kind        Kind      `json:"kind,omitempty"`
	Media       *Media    `json:"media,omitempty"`
}

// UnreadPayload bumps the unread counter for a counterpart. Count is the
// increment, defaulting to 1 when omitted on the wire.
type UnreadPayload struct {
	UserID string `json:"userId"`
	Count  int    `json:"count,omitempty"`
}

// PresencePayload signals a user coming online or going offline.
type PresencePayload struct {
	UserID string `json:"userId"`
}

// ReadReceiptPayload tells the server a message was viewed.
type ReadReceiptPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	ReaderID  string `json:"readerId"`
}
