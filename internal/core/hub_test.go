package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Ladkan/MeChat/internal/store"
)

func TestHubSendPersistsThenBroadcasts(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st, nil)

	alice := newTestClient(t, hub, "a", "alice")
	bob := newTestClient(t, hub, "b", "bob")
	joinRoom(t, alice, "general")
	joinRoom(t, bob, "general")

	alice.Commands <- &Command{Kind: CommandSendMessage, Room: "general", Content: "hello"}

	ev := mustEvent(t, bob.Events, EventReceiveMessage)
	msg := ev.Message
	if msg.Content != "hello" || msg.RoomID != "general" || msg.Sender != "alice" || msg.UserID != "u-alice" {
		t.Fatalf("unexpected message event: %+v", msg)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() || msg.DeletedAt != nil {
		t.Fatalf("message not stamped: %+v", msg)
	}

	// Already persisted by the time it was delivered.
	saved, err := st.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("broadcast message not in store: %v", err)
	}
	if saved.Content != "hello" {
		t.Fatalf("unexpected stored content %q", saved.Content)
	}

	// The sender gets its own copy.
	own := mustEvent(t, alice.Events, EventReceiveMessage)
	if own.Message.ID != msg.ID {
		t.Fatalf("sender copy mismatch: %+v", own.Message)
	}

	// Exactly one delivery per observer.
	expectNoEvent(t, bob.Events, 100*time.Millisecond)
}

func TestHubBroadcastOrderMatchesHistory(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st, nil)

	alice := newTestClient(t, hub, "a", "alice")
	bob := newTestClient(t, hub, "b", "bob")
	joinRoom(t, alice, "general")
	joinRoom(t, bob, "general")

	const total = 20
	go func() {
		for i := 0; i < total; i++ {
			sender := alice
			if i%2 == 1 {
				sender = bob
			}
			sender.Commands <- &Command{Kind: CommandSendMessage, Room: "general", Content: fmt.Sprintf("m%d", i)}
		}
	}()

	var received []Message
	for len(received) < total {
		ev := mustEvent(t, bob.Events, EventReceiveMessage)
		received = append(received, ev.Message)
	}

	history, err := st.History(context.Background(), "general")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != total {
		t.Fatalf("expected %d stored messages, got %d", total, len(history))
	}
	for i := range received {
		if received[i].ID != history[i].ID {
			t.Fatalf("delivery %d out of order: got %s want %s", i, received[i].ID, history[i].ID)
		}
		if i > 0 && received[i].CreatedAt.Before(received[i-1].CreatedAt) {
			t.Fatalf("createdAt decreased at %d", i)
		}
	}
}

func TestHubTypingExcludesSender(t *testing.T) {
	hub := startHub(t, newTestStore(t), nil)

	alice := newTestClient(t, hub, "a", "alice")
	bob := newTestClient(t, hub, "b", "bob")
	carol := newTestClient(t, hub, "c", "carol")
	joinRoom(t, alice, "general")
	joinRoom(t, bob, "general")
	joinRoom(t, carol, "general")

	alice.Commands <- &Command{Kind: CommandTyping, Room: "general"}

	for _, peer := range []*Client{bob, carol} {
		ev := mustEvent(t, peer.Events, EventUserTyping)
		if ev.User != "alice" || ev.Room != "general" {
			t.Fatalf("unexpected typing event: %+v", ev)
		}
	}
	expectNoEvent(t, alice.Events, 100*time.Millisecond)
}

func TestHubClientOutsideRoomReceivesNothing(t *testing.T) {
	hub := startHub(t, newTestStore(t), nil)

	alice := newTestClient(t, hub, "a", "alice")
	outsider := newTestClient(t, hub, "o", "outsider")
	joinRoom(t, alice, "general")
	joinRoom(t, outsider, "elsewhere")

	alice.Commands <- &Command{Kind: CommandSendMessage, Room: "general", Content: "private"}
	alice.Commands <- &Command{Kind: CommandTyping, Room: "general"}
	mustEvent(t, alice.Events, EventReceiveMessage)

	expectNoEvent(t, outsider.Events, 150*time.Millisecond)
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	hub := startHub(t, newTestStore(t), nil)

	alice := newTestClient(t, hub, "a", "alice")
	bob := newTestClient(t, hub, "b", "bob")
	joinRoom(t, alice, "general")
	joinRoom(t, bob, "general")

	bob.Commands <- &Command{Kind: CommandLeaveRoom, Room: "general"}
	mustEvent(t, bob.Events, EventRoomLeft)

	// Leaving again is harmless.
	bob.Commands <- &Command{Kind: CommandLeaveRoom, Room: "general"}
	mustEvent(t, bob.Events, EventRoomLeft)

	alice.Commands <- &Command{Kind: CommandSendMessage, Room: "general", Content: "anyone?"}
	mustEvent(t, alice.Events, EventReceiveMessage)
	expectNoEvent(t, bob.Events, 100*time.Millisecond)
}

func TestHubUnregisterRemovesFromAllRooms(t *testing.T) {
	hub := startHub(t, newTestStore(t), nil)
	ctx := context.Background()

	alice := newTestClient(t, hub, "a", "alice")
	bob := newTestClient(t, hub, "b", "bob")
	joinRoom(t, alice, "general")
	joinRoom(t, bob, "general")
	joinRoom(t, bob, "random")

	hub.UnregisterClient(bob)

	for _, room := range []string{"general", "random"} {
		members, err := hub.RoomMembers(ctx, room)
		if err != nil {
			t.Fatalf("room members: %v", err)
		}
		for _, id := range members {
			if id == bob.ID {
				t.Fatalf("bob still in %s after disconnect", room)
			}
		}
	}

	select {
	case <-bob.Done():
	case <-time.After(time.Second):
		t.Fatalf("bob's done channel not closed")
	}

	// Broadcasting to rooms the stale client was in keeps working.
	alice.Commands <- &Command{Kind: CommandSendMessage, Room: "general", Content: "still here"}
	mustEvent(t, alice.Events, EventReceiveMessage)
	if err := hub.Broadcast(ctx, "random", &Event{Kind: EventUserTyping, Room: "random"}, ""); err != nil {
		t.Fatalf("broadcast to emptied room: %v", err)
	}

	stats, err := hub.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Clients != 1 || stats.Rooms != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// A second unregister is a no-op.
	hub.UnregisterClient(bob)
}

func TestHubValidationErrorsStayWithRequester(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st, nil)

	alice := newTestClient(t, hub, "a", "alice")
	bob := newTestClient(t, hub, "b", "bob")
	joinRoom(t, alice, "general")
	joinRoom(t, bob, "general")

	cases := []*Command{
		{Kind: CommandSendMessage, Room: "general", Content: ""},
		{Kind: CommandSendMessage, Room: "general", Content: "   "},
		{Kind: CommandSendMessage, Room: "", Content: "hi"},
		{Kind: CommandJoinRoom, Room: ""},
		{Kind: CommandTyping, Room: ""},
		{Kind: CommandKind(99), Room: "general"},
	}
	for _, cmd := range cases {
		alice.Commands <- cmd
		ev := mustEvent(t, alice.Events, EventError)
		if ev.Error == nil || ev.Error.Code != ErrCodeBadRequest {
			t.Fatalf("%v: expected bad_request, got %+v", cmd.Kind, ev)
		}
	}

	expectNoEvent(t, bob.Events, 100*time.Millisecond)
	history, err := st.History(context.Background(), "general")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("invalid sends must not persist, got %d rows", len(history))
	}
}

func TestHubPersistenceFailureSuppressesBroadcast(t *testing.T) {
	hub := startHub(t, failingMessages{}, nil)

	alice := newTestClient(t, hub, "a", "alice")
	bob := newTestClient(t, hub, "b", "bob")
	joinRoom(t, alice, "general")
	joinRoom(t, bob, "general")

	alice.Commands <- &Command{Kind: CommandSendMessage, Room: "general", Content: "lost"}

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodePersistenceFailed {
		t.Fatalf("expected persistence_failed, got %+v", ev)
	}
	expectNoEvent(t, bob.Events, 100*time.Millisecond)
}

func TestHubDeleteMessage(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st, nil)
	ctx := context.Background()

	alice := newTestClient(t, hub, "a", "alice")
	bob := newTestClient(t, hub, "b", "bob")
	joinRoom(t, alice, "general")
	joinRoom(t, bob, "general")

	alice.Commands <- &Command{Kind: CommandSendMessage, Room: "general", Content: "oops"}
	m1 := mustEvent(t, bob.Events, EventReceiveMessage).Message
	mustEvent(t, alice.Events, EventReceiveMessage)

	// Bob is not the author.
	if _, err := hub.DeleteMessage(ctx, m1.ID, "u-bob"); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	expectNoEvent(t, alice.Events, 100*time.Millisecond)
	unchanged, err := st.GetMessage(ctx, m1.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if unchanged.Content != "oops" || unchanged.DeletedAt != nil {
		t.Fatalf("forbidden delete changed state: %+v", unchanged)
	}

	deleted, err := hub.DeleteMessage(ctx, m1.ID, "u-alice")
	if err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if deleted.Content != store.Tombstone || deleted.DeletedAt == nil {
		t.Fatalf("unexpected deleted message: %+v", deleted)
	}
	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventMessageDeleted)
		if ev.MessageID != m1.ID || ev.Room != "general" {
			t.Fatalf("unexpected deletion event: %+v", ev)
		}
	}

	if _, err := hub.DeleteMessage(ctx, m1.ID, "u-alice"); !errors.Is(err, store.ErrAlreadyDeleted) {
		t.Fatalf("expected ErrAlreadyDeleted, got %v", err)
	}
	expectNoEvent(t, bob.Events, 100*time.Millisecond)

	if _, err := hub.DeleteMessage(ctx, "missing", "u-alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	history, err := st.History(ctx, "general")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Content != store.Tombstone || history[0].DeletedAt == nil {
		t.Fatalf("history should keep tombstone: %+v", history)
	}
}

func TestHubKnownRoomPolicy(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st, KnownRoomPolicy{Rooms: st})

	alice := newTestClient(t, hub, "a", "alice")
	joinRoom(t, alice, "general")

	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "ghost"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeRoomNotFound || ev.Room != "ghost" {
		t.Fatalf("expected room_not_found, got %+v", ev)
	}

	members, err := hub.RoomMembers(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("room members: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("rejected join must not register membership: %v", members)
	}
}

func TestHubRecoversFromPanic(t *testing.T) {
	hub := startHub(t, newTestStore(t), panicPolicy{})

	alice := newTestClient(t, hub, "a", "alice")
	bob := newTestClient(t, hub, "b", "bob")

	alice.Commands <- &Command{Kind: CommandJoinRoom, Room: "general"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeInternal {
		t.Fatalf("expected internal_error, got %+v", ev)
	}

	// The hub keeps serving other connections.
	bob.Commands <- &Command{Kind: CommandTyping, Room: "general"}
	stats, err := hub.Stats(context.Background())
	if err != nil {
		t.Fatalf("hub unresponsive after panic: %v", err)
	}
	if stats.Clients != 2 {
		t.Fatalf("expected 2 clients, got %+v", stats)
	}
}

func TestHubStopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(newTestStore(t), nil, nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	alice := newTestClient(t, hub, "a", "alice")
	cancel()
	<-stopped

	select {
	case _, ok := <-alice.Events:
		if ok {
			t.Fatalf("expected closed events channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("events channel not closed on shutdown")
	}

	late := NewClient("late", alice.Identity, 0)
	if err := hub.RegisterClient(late); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	if err := hub.Broadcast(context.Background(), "general", &Event{}, ""); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
}
