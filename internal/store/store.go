package store

import (
	"context"
	"errors"
	"time"
)

// Tombstone replaces the content of a soft-deleted message.
const Tombstone = "[Deleted by user]"

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller does not own the message.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyDeleted is returned when soft-deleting a tombstoned message.
	ErrAlreadyDeleted = errors.New("message already deleted")
)

// User is the identity record owned by the external auth service.
type User struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Session maps an opaque session token to a user.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Room represents a chat room. Rooms are created by the external room service.
type Room struct {
	ID        string
	Name      string
	CreatorID string
	CreatedAt time.Time
}

// Message represents a persisted chat message.
type Message struct {
	ID        string
	RoomID    string
	UserID    string
	Content   string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the message has been soft-deleted.
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// HistoryEntry is a message joined with its sender's display name.
type HistoryEntry struct {
	Message
	Sender string
}

// SessionStore resolves session tokens issued by the auth service.
type SessionStore interface {
	// GetSessionUser returns the user owning a non-expired session token.
	GetSessionUser(ctx context.Context, token string, now time.Time) (*User, error)
}

// RoomStore gives read access to rooms.
type RoomStore interface {
	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id string) (*Room, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage assigns an ID and timestamp to a new message and writes it.
	AppendMessage(ctx context.Context, roomID, userID, content string) (*Message, error)

	// History returns every message of a room in ascending creation order,
	// soft-deleted rows included.
	History(ctx context.Context, roomID string) ([]*HistoryEntry, error)

	// SoftDelete tombstones a message owned by requestingUserID.
	SoftDelete(ctx context.Context, messageID, requestingUserID string) (*Message, error)

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id string) (*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	SessionStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
