package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User is the minimal view of an account the messaging core relies on.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// Message represents a persisted direct message between two users.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
	IsRead     bool
}

// UserStore handles user lookups.
type UserStore interface {
	// CreateUser inserts a user with the given opaque identifier.
	CreateUser(ctx context.Context, id, username string) (*User, error)

	// GetUserByID retrieves a user by ID. Returns ErrNotFound if absent.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// UserExists reports whether a user with the given ID exists.
	UserExists(ctx context.Context, id string) (bool, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message. ID and CreatedAt must already be set.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID. Returns ErrNotFound if absent.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListConversation returns messages exchanged between two users in either
	// direction, newest first. If since is provided, only messages created at
	// or after it are returned.
	ListConversation(ctx context.Context, userID, otherUserID string, since *time.Time) ([]*Message, error)

	// MarkRead sets the read flag. Reports whether the message exists.
	MarkRead(ctx context.Context, id string) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

// ConversationKey returns a key identifying the unordered pair of users,
// in the form "{minUserID}:{maxUserID}".
func ConversationKey(userID, otherUserID string) string {
	if otherUserID < userID {
		userID, otherUserID = otherUserID, userID
	}
	return userID + ":" + otherUserID
}
