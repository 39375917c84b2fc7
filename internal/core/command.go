package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandSendMessage persists a chat message and delivers it to room members.
	CommandSendMessage
	// CommandTyping relays an ephemeral typing signal to the other room members.
	CommandTyping
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinRoom:
		return "join_room"
	case CommandLeaveRoom:
		return "leave_room"
	case CommandSendMessage:
		return "send_message"
	case CommandTyping:
		return "typing"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Room    string
	Content string
}
