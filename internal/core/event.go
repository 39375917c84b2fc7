package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventReceiveMessage delivers a persisted chat message to room members.
	EventReceiveMessage EventKind = iota
	// EventUserTyping tells members that someone is typing.
	EventUserTyping
	// EventMessageDeleted tells members a message was tombstoned.
	EventMessageDeleted
	// EventRoomJoined confirms a join to the requester only.
	EventRoomJoined
	// EventRoomLeft confirms a leave to the requester only.
	EventRoomLeft
	// EventError notifies the requester about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	Room      string
	User      string // display name, for EventUserTyping
	MessageID string // for EventMessageDeleted
	Message   Message
	Error     *CoreError
}
