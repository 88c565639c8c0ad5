// ABOUTME: Store interface and data types for chatd persistence
// ABOUTME: Defines Conversation, Message structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation
// for a participant pair that already has one
var ErrDuplicateConversation = errors.New("conversation already exists")

// Conversation represents the unique relationship record between two users.
// UserLow and UserHigh hold the participant IDs in canonical order
// (UserLow < UserHigh), so any unordered pair maps to exactly one row.
type Conversation struct {
	ID        string
	UserLow   string
	UserHigh  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Counterpart returns the participant that is not userID, or the empty
// string if userID is not a participant.
func (c *Conversation) Counterpart(userID string) string {
	switch userID {
	case c.UserLow:
		return c.UserHigh
	case c.UserHigh:
		return c.UserLow
	default:
		return ""
	}
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.UserLow || userID == c.UserHigh
}

// Message represents a single message within a conversation.
// Messages are immutable once persisted except for the IsRead flag,
// which transitions false→true exactly once when the recipient views it.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	IsRead         bool
	CreatedAt      time.Time
}

// Store defines the interface for conversation and message persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	FindConversationByPair(ctx context.Context, userLow, userHigh string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	DeleteConversation(ctx context.Context, id string) error

	// Messages
	CreateMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)

	Close() error
}
