package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultMaxMessageLength bounds message text, in characters.
const DefaultMaxMessageLength = 4096

// Message is a persisted private message between two users.
// ID and CreatedAt are assigned by the message store, never by clients.
type Message struct {
	ID         int64     `json:"id"`
	SenderID   UserID    `json:"sender_id"`
	ReceiverID UserID    `json:"receiver_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Involves reports whether the message belongs to the conversation between a and b.
func (m *Message) Involves(a, b UserID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Before orders messages by created_at, then id.
func (m *Message) Before(o *Message) bool {
	if m.CreatedAt.Equal(o.CreatedAt) {
		return m.ID < o.ID
	}
	return m.CreatedAt.Before(o.CreatedAt)
}

// NormalizeText trims surrounding whitespace from message text.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}

// ValidateMessage checks participants and text before any write.
// maxLen <= 0 selects DefaultMaxMessageLength. It returns the normalized text.
func ValidateMessage(sender, receiver UserID, text string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	if !sender.Valid() || !receiver.Valid() {
		return "", fmt.Errorf("%w: sender and receiver are required", ErrValidation)
	}
	if sender == receiver {
		return "", fmt.Errorf("%w: cannot send a message to yourself", ErrValidation)
	}
	text = NormalizeText(text)
	if text == "" {
		return "", fmt.Errorf("%w: message text is empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(text); n > maxLen {
		return "", fmt.Errorf("%w: message text is %d characters, limit is %d", ErrValidation, n, maxLen)
	}
	return text, nil
}

// Event types pushed to live channels.
const (
	EventNewMessage  = "new_message"
	EventMessageSent = "message_sent"
	EventReady       = "ready"
	EventPong        = "pong"
	EventError       = "error"
)

// Event is a server-initiated frame on a live channel.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewMessageEvent wraps a persisted message for push delivery.
func NewMessageEvent(m *Message) Event {
	return Event{Type: EventNewMessage, Payload: m}
}
