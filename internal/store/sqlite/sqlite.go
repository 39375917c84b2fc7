package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ladkan/MeChat/internal/store"
	"github.com/Ladkan/MeChat/internal/utils"
)

//go:embed schema.sql
var schema string

// Schema returns the DDL applied by Migrate.
func Schema() string {
	return schema
}

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB

	// clockMu serialises timestamp assignment so created_at never goes backwards,
	// including across restarts: lastCreated is seeded from the newest stored row.
	clockMu     sync.Mutex
	now         func() time.Time
	lastCreated time.Time
	clockSeeded bool
}

var _ store.Store = (*SQLiteStore)(nil)

// New creates a new SQLite store.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema and fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// seedClockLocked loads the newest created_at once. Callers hold clockMu.
func (s *SQLiteStore) seedClockLocked(ctx context.Context) error {
	if s.clockSeeded {
		return nil
	}
	var newest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM messages`).Scan(&newest); err != nil {
		return fmt.Errorf("load newest message time: %w", err)
	}
	if newest.Valid {
		if t := fromUnix(newest.Int64); t.After(s.lastCreated) {
			s.lastCreated = t
		}
	}
	s.clockSeeded = true
	return nil
}

// SetClock replaces the time source used for message timestamps.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.clockMu.Lock()
	s.now = now
	s.clockMu.Unlock()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// ==== SessionStore implementation ====

// GetSessionUser returns the user owning a non-expired session token.
func (s *SQLiteStore) GetSessionUser(ctx context.Context, token string, now time.Time) (*store.User, error) {
	query := `
		SELECT u.id, u.name, u.email, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = ? AND s.expires_at > ?
	`
	var user store.User
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, token, toUnix(now)).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query session: %w", err)
	}
	user.CreatedAt = fromUnix(createdAt)

	return &user, nil
}

// ==== RoomStore implementation ====

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id string) (*store.Room, error) {
	query := `
		SELECT id, name, creator_id, created_at
		FROM rooms
		WHERE id = ?
	`
	var room store.Room
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&room.ID, &room.Name, &room.CreatorID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	room.CreatedAt = fromUnix(createdAt)

	return &room, nil
}

// ==== MessageStore implementation ====

// AppendMessage assigns an ID and timestamp to a new message and writes it.
func (s *SQLiteStore) AppendMessage(ctx context.Context, roomID, userID, content string) (*store.Message, error) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	if err := s.seedClockLocked(ctx); err != nil {
		return nil, err
	}
	createdAt := s.now().UTC()
	if !createdAt.After(s.lastCreated) {
		createdAt = s.lastCreated.Add(time.Nanosecond)
	}

	msg := &store.Message{
		ID:        utils.NewID(),
		RoomID:    roomID,
		UserID:    userID,
		Content:   content,
		CreatedAt: createdAt,
	}

	query := `
		INSERT INTO messages (id, room_id, user_id, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, msg.ID, msg.RoomID, msg.UserID, msg.Content, toUnix(msg.CreatedAt)); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	s.lastCreated = createdAt
	return msg, nil
}

// History returns every message of a room in ascending creation order.
func (s *SQLiteStore) History(ctx context.Context, roomID string) ([]*store.HistoryEntry, error) {
	query := `
		SELECT m.id, m.room_id, m.user_id, m.content, m.created_at, m.deleted_at, COALESCE(u.name, '')
		FROM messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.room_id = ?
		ORDER BY m.created_at ASC, m.rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	history := make([]*store.HistoryEntry, 0)
	for rows.Next() {
		var entry store.HistoryEntry
		var createdAt int64
		var deletedAt sql.NullInt64
		if err := rows.Scan(
			&entry.ID,
			&entry.RoomID,
			&entry.UserID,
			&entry.Content,
			&createdAt,
			&deletedAt,
			&entry.Sender,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		entry.CreatedAt = fromUnix(createdAt)
		if deletedAt.Valid {
			t := fromUnix(deletedAt.Int64)
			entry.DeletedAt = &t
		}
		history = append(history, &entry)
	}

	return history, rows.Err()
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT id, room_id, user_id, content, created_at, deleted_at
		FROM messages
		WHERE id = ?
	`
	var msg store.Message
	var createdAt int64
	var deletedAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.UserID,
		&msg.Content,
		&createdAt,
		&deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	msg.CreatedAt = fromUnix(createdAt)
	if deletedAt.Valid {
		t := fromUnix(deletedAt.Int64)
		msg.DeletedAt = &t
	}

	return &msg, nil
}

// SoftDelete tombstones a message owned by requestingUserID.
// The UPDATE only matches live rows, so concurrent deletes stamp deleted_at once.
func (s *SQLiteStore) SoftDelete(ctx context.Context, messageID, requestingUserID string) (*store.Message, error) {
	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.UserID != requestingUserID {
		return nil, fmt.Errorf("message %s: %w", messageID, store.ErrForbidden)
	}
	if msg.Deleted() {
		return msg, fmt.Errorf("message %s: %w", messageID, store.ErrAlreadyDeleted)
	}

	deletedAt := time.Now().UTC()
	query := `
		UPDATE messages
		SET content = ?, deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`
	result, err := s.db.ExecContext(ctx, query, store.Tombstone, toUnix(deletedAt), messageID)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost a race with another delete of the same row.
		current, getErr := s.GetMessage(ctx, messageID)
		if getErr != nil {
			return nil, getErr
		}
		return current, fmt.Errorf("message %s: %w", messageID, store.ErrAlreadyDeleted)
	}

	msg.Content = store.Tombstone
	msg.DeletedAt = &deletedAt
	return msg, nil
}
