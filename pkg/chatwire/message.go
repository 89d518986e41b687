package chatwire

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message. An AI-generated admin reply keeps
// SenderAdmin and sets IsAI instead of using SenderBot.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
	SenderBot   Sender = "bot"
)

// Message is one chat turn. ID is the sole deduplication and render key; it is
// client-generated for optimistic entries and derived locally for server pushes
// that arrive without one. Messages are never mutated after creation.
type Message struct {
	ID        string    `json:"id,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	IsAI      bool      `json:"isAI,omitempty"`
}

// DeriveMessageID mints a locally unique id for a message that has none. The
// sender prefix keeps derived ids readable in logs.
func DeriveMessageID(sender Sender) string {
	s := string(sender)
	if s == "" {
		s = "msg"
	}
	return fmt.Sprintf("%s-%s", s, uuid.NewString())
}

// HistoryRecord is one entry of a messages-history reply. Historical backends
// disagree on field names (message vs content, isAdmin vs sender), so the record
// keeps all variants and Normalize folds them into a Message.
type HistoryRecord struct {
	ID        string     `json:"id,omitempty"`
	Sender    Sender     `json:"sender,omitempty"`
	IsAdmin   bool       `json:"isAdmin,omitempty"`
	IsAI      bool       `json:"isAI,omitempty"`
	Message   string     `json:"message,omitempty"`
	Content   string     `json:"content,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// Normalize converts a possibly partial history record into a Message, filling
// fallbacks instead of rejecting: a missing id is derived, a missing timestamp
// falls back to now, and isAdmin implies SenderAdmin. Partial records are an
// expected condition, not an error.
func (r HistoryRecord) Normalize(now time.Time) Message {
	sender := r.Sender
	if r.IsAdmin {
		sender = SenderAdmin
	}
	if sender == "" {
		sender = SenderUser
	}

	content := r.Content
	if content == "" {
		content = r.Message
	}

	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = DeriveMessageID(sender)
	}

	createdAt := now
	switch {
	case r.CreatedAt != nil && !r.CreatedAt.IsZero():
		createdAt = *r.CreatedAt
	case r.Timestamp != nil && !r.Timestamp.IsZero():
		createdAt = *r.Timestamp
	}

	return Message{
		ID:        id,
		Sender:    sender,
		Content:   content,
		CreatedAt: createdAt,
		IsAI:      r.IsAI,
	}
}

// OutgoingMessage is the payload of user_message and admin_message emits.
type OutgoingMessage struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
}
