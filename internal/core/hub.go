package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Ladkan/MeChat/internal/store"
)

// Hub owns the connection registry and handles every inbound command, join,
// leave and broadcast request on a single goroutine. Because a message is
// persisted and broadcast inside the same step, delivery order within a room
// matches the order in which messages were written.
type Hub struct {
	registry    *Registry
	broadcaster *Broadcaster
	typing      *TypingSignal
	messages    store.MessageStore
	policy      JoinPolicy
	log         *zerolog.Logger

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	broadcasts chan broadcast
	calls      chan func()
	done       chan struct{}
}

type inbound struct {
	client *Client
	cmd    *Command
}

type broadcast struct {
	room    string
	event   *Event
	exclude string
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Clients int
	Rooms   int
}

// NewHub creates a hub. A nil policy admits every join; a nil logger discards output.
func NewHub(messages store.MessageStore, policy JoinPolicy, logger *zerolog.Logger) *Hub {
	if policy == nil {
		policy = AllowAll{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry, logger)
	return &Hub{
		registry:    registry,
		broadcaster: broadcaster,
		typing:      NewTypingSignal(broadcaster),
		messages:    messages,
		policy:      policy,
		log:         logger,
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		inbound:     make(chan inbound),
		broadcasts:  make(chan broadcast),
		calls:       make(chan func()),
		done:        make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. On exit every client is
// unregistered and its event channel closed.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.registry.Register(c)
			go h.forward(c)
			h.log.Debug().Str("client_id", c.ID).Str("user_id", c.Identity.ID).Msg("client registered")
		case c := <-h.unregister:
			h.drop(c)
		case in := <-h.inbound:
			h.safely(in.client, func() { h.handle(ctx, in.client, in.cmd) })
		case b := <-h.broadcasts:
			h.safely(nil, func() { h.broadcaster.Send(b.room, b.event, b.exclude) })
		case fn := <-h.calls:
			h.safely(nil, fn)
		}
	}
}

// RegisterClient adds a freshly authenticated client with no room membership.
func (h *Hub) RegisterClient(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// UnregisterClient removes the client from every room. No event is sent to peers.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues an event for every member of roomID except excludeID.
func (h *Hub) Broadcast(ctx context.Context, roomID string, event *Event, excludeID string) error {
	select {
	case h.broadcasts <- broadcast{room: roomID, event: event, exclude: excludeID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
}

// DeleteMessage tombstones a message owned by userID and tells the room about it.
// Store errors (not found, forbidden, already deleted) are returned unchanged and
// nothing is broadcast.
func (h *Hub) DeleteMessage(ctx context.Context, messageID, userID string) (*store.Message, error) {
	msg, err := h.messages.SoftDelete(ctx, messageID, userID)
	if err != nil {
		return msg, err
	}

	event := &Event{Kind: EventMessageDeleted, Room: msg.RoomID, MessageID: msg.ID}
	if err := h.Broadcast(ctx, msg.RoomID, event, ""); err != nil {
		h.log.Warn().Err(err).Str("message_id", msg.ID).Msg("deletion not broadcast")
	}

	h.log.Info().Str("message_id", msg.ID).Str("room_id", msg.RoomID).Str("user_id", userID).Msg("message deleted")
	return msg, nil
}

// RoomMembers returns the ids of clients currently joined to roomID.
func (h *Hub) RoomMembers(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := h.call(ctx, func() {
		for _, c := range h.registry.Members(roomID) {
			ids = append(ids, c.ID)
		}
	})
	return ids, err
}

// Stats reports registry counts.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := h.call(ctx, func() {
		st = Stats{Clients: h.registry.Len(), Rooms: len(h.registry.rooms)}
	})
	return st, err
}

// call runs fn on the hub goroutine and waits for it.
func (h *Hub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case h.calls <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubStopped
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// forward feeds a client's commands into the hub, preserving their order.
func (h *Hub) forward(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.inbound <- inbound{client: c, cmd: cmd}:
			case <-c.quit:
				return
			case <-h.done:
				return
			}
		case <-c.quit:
			return
		case <-h.done:
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	if _, ok := h.registry.Client(c.ID); !ok {
		// Command raced with disconnect.
		return
	}

	switch cmd.Kind {
	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd.Room)
	case CommandLeaveRoom:
		h.handleLeave(c, cmd.Room)
	case CommandSendMessage:
		h.handleSend(ctx, c, cmd.Room, cmd.Content)
	case CommandTyping:
		h.handleTyping(c, cmd.Room)
	default:
		h.reject(c, cmd.Room, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, roomID string) {
	if roomID == "" {
		h.reject(c, roomID, coreError(ErrCodeBadRequest, "room is required"))
		return
	}

	allowed, err := h.policy.CanJoin(ctx, c.Identity, roomID)
	if err != nil {
		h.log.Error().Err(err).Str("client_id", c.ID).Str("room_id", roomID).Msg("join policy failed")
		h.reject(c, roomID, coreError(ErrCodeInternal, "could not join room"))
		return
	}
	if !allowed {
		h.reject(c, roomID, coreError(ErrCodeRoomNotFound, "room not found"))
		return
	}

	if h.registry.Join(c.ID, roomID) {
		h.log.Debug().Str("client_id", c.ID).Str("room_id", roomID).Msg("joined room")
	}
	deliver(c, &Event{Kind: EventRoomJoined, Room: roomID})
}

func (h *Hub) handleLeave(c *Client, roomID string) {
	if roomID == "" {
		h.reject(c, roomID, coreError(ErrCodeBadRequest, "room is required"))
		return
	}
	if h.registry.Leave(c.ID, roomID) {
		h.log.Debug().Str("client_id", c.ID).Str("room_id", roomID).Msg("left room")
	}
	deliver(c, &Event{Kind: EventRoomLeft, Room: roomID})
}

func (h *Hub) handleSend(ctx context.Context, c *Client, roomID, content string) {
	if roomID == "" {
		h.reject(c, roomID, coreError(ErrCodeBadRequest, "room is required"))
		return
	}
	if strings.TrimSpace(content) == "" {
		h.reject(c, roomID, coreError(ErrCodeBadRequest, "content is required"))
		return
	}
	if h.messages == nil {
		h.reject(c, roomID, coreError(ErrCodePersistenceFailed, "message not saved"))
		return
	}

	saved, err := h.messages.AppendMessage(ctx, roomID, c.Identity.ID, content)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
		h.log.Error().Err(err).Str("client_id", c.ID).Str("room_id", roomID).Msg("failed to save message")
		h.reject(c, roomID, coreError(ErrCodePersistenceFailed, "message not saved"))
		return
	}

	h.broadcaster.Send(roomID, &Event{
		Kind:    EventReceiveMessage,
		Room:    roomID,
		Message: messageFromStore(saved, c.Name()),
	}, "")
}

func (h *Hub) handleTyping(c *Client, roomID string) {
	if roomID == "" {
		h.reject(c, roomID, coreError(ErrCodeBadRequest, "room is required"))
		return
	}
	h.typing.Notify(roomID, c)
}

// reject reports an error to the requesting client only.
func (h *Hub) reject(c *Client, roomID string, cerr *CoreError) {
	if c == nil {
		return
	}
	deliver(c, &Event{Kind: EventError, Room: roomID, Error: cerr})
}

// safely isolates a panic to the event that caused it.
func (h *Hub) safely(c *Client, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			ev := h.log.Error().Interface("panic", r)
			if c != nil {
				ev = ev.Str("client_id", c.ID)
			}
			ev.Msg("recovered from panic in hub")
			h.reject(c, "", coreError(ErrCodeInternal, "internal error"))
		}
	}()
	fn()
}

func (h *Hub) drop(c *Client) {
	if _, ok := h.registry.Unregister(c.ID); !ok {
		return
	}
	close(c.quit)
	close(c.Events)
	h.log.Debug().Str("client_id", c.ID).Msg("client unregistered")
}

func (h *Hub) shutdown() {
	close(h.done)
	for _, c := range h.registry.clientsSnapshot() {
		h.drop(c)
	}
}
