package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates message content.
type Kind string

const (
	KindText  Kind = "text"
	KindMedia Kind = "media"
)

// ErrEmptyMessage rejects a message with no body after trimming.
var ErrEmptyMessage = errors.New("chat: empty message body")

// Media describes an attachment on a media message.
type Media struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Message is one log entry in a conversation.
type Message struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"authorId"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sentAt"`
	IsRead   bool      `json:"isRead"`
	Kind     Kind      `json:"kind"`
	Media    *Media    `json:"media,omitempty"`
}

// NewMessage validates and normalizes an outbound text message: the body
// is trimmed and must be non-empty, the id is client-assigned for the
// optimistic append, and SentAt is stamped now.
func NewMessage(authorID, body string) (Message, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return Message{}, ErrEmptyMessage
	}
	return Message{
		ID:       uuid.NewString(),
		AuthorID: authorID,
		Body:     trimmed,
		SentAt:   time.Now().UTC(),
		Kind:     KindText,
	}, nil
}
