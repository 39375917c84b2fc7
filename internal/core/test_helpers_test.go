package core

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Ladkan/MeChat/internal/auth"
	"github.com/Ladkan/MeChat/internal/store"
	"github.com/Ladkan/MeChat/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		if _, err := db.Exec(sqlite.Schema()); err != nil {
			return err
		}
		_, err := db.Exec(`
		INSERT INTO users (id, name, created_at) VALUES ('u-alice', 'alice', 0), ('u-bob', 'bob', 0);
		INSERT INTO rooms (id, name, creator_id, created_at) VALUES ('general', 'General', 'u-alice', 0);
		`)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func startHub(t *testing.T, messages store.MessageStore, policy JoinPolicy) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(messages, policy, nil)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func newTestClient(t *testing.T, hub *Hub, id, name string) *Client {
	t.Helper()

	c := NewClient(id, auth.Identity{ID: "u-" + name, Name: name}, 0)
	if err := hub.RegisterClient(c); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return c
}

func joinRoom(t *testing.T, c *Client, room string) {
	t.Helper()

	c.Commands <- &Command{Kind: CommandJoinRoom, Room: room}
	ev := mustEvent(t, c.Events, EventRoomJoined)
	if ev.Room != room {
		t.Fatalf("joined wrong room: %+v", ev)
	}
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func expectNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(wait):
	}
}

// failingMessages refuses every write.
type failingMessages struct {
	store.MessageStore
}

func (failingMessages) AppendMessage(context.Context, string, string, string) (*store.Message, error) {
	return nil, errors.New("disk full")
}

// panicPolicy blows up inside the hub goroutine.
type panicPolicy struct{}

func (panicPolicy) CanJoin(context.Context, auth.Identity, string) (bool, error) {
	panic("boom")
}
