package proto

import (
	"encoding/json"
	"errors"
	"time"
)

// Envelope frames every WebSocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client to server events.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
)

// Server to client events.
const (
	EventReceiveMessage = "receive_message"
	EventUserTyping     = "user_typing"
	EventMessageDeleted = "message_deleted"
	EventRoomJoined     = "room_joined"
	EventRoomLeft       = "room_left"
	EventError          = "error"
)

// RoomRef names a room. On the wire join_room and leave_room carry either a
// bare JSON string or an object with roomId.
type RoomRef struct {
	RoomID string `json:"roomId"`
}

// UnmarshalJSON accepts both "room" and {"roomId":"room"}.
func (r *RoomRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.RoomID = id
		return nil
	}
	type plain RoomRef
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.New("room reference must be a string or {roomId}")
	}
	*r = RoomRef(obj)
	return nil
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

// TypingData announces that the client is typing in a room.
type TypingData struct {
	RoomID string `json:"roomId"`
}

// ReceiveMessage is a persisted message delivered to room members.
type ReceiveMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Sender    string    `json:"sender"`
}

// UserTyping tells members who is typing.
type UserTyping struct {
	Name string `json:"name"`
}

// MessageDeleted tells members a message was tombstoned.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	RoomID  string `json:"roomId,omitempty"`
}

// NewEnvelope marshals data under the given event name.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}
