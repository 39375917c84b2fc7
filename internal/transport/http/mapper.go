package http

import (
	"encoding/json"
	"fmt"

	"github.com/Ladkan/MeChat/internal/core"
	"github.com/Ladkan/MeChat/internal/proto"
)

// decodeFrame parses a raw text frame into a hub command.
func decodeFrame(data []byte) (*core.Command, *proto.Error, error) {
	var env proto.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("decode envelope: %w", err)
	}
	return inboundToCommand(env)
}

// inboundToCommand decodes a client frame. A non-nil error means the payload was
// malformed; a non-nil *proto.Error is a protocol error to report back.
func inboundToCommand(env proto.Envelope) (*core.Command, *proto.Error, error) {
	switch env.Event {
	case proto.EventJoinRoom, proto.EventLeaveRoom:
		var ref proto.RoomRef
		if err := json.Unmarshal(env.Data, &ref); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		kind := core.CommandJoinRoom
		if env.Event == proto.EventLeaveRoom {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Room: ref.RoomID}, nil, nil
	case proto.EventSendMessage:
		var msg proto.SendMessageData
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return &core.Command{
			Kind:    core.CommandSendMessage,
			Room:    msg.RoomID,
			Content: msg.Content,
		}, nil, nil
	case proto.EventTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(env.Data, &typing); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return &core.Command{Kind: core.CommandTyping, Room: typing.RoomID}, nil, nil
	default:
		return nil, &proto.Error{Code: "unknown_event", Message: "unknown event " + env.Event}, nil
	}
}

func outboundFromEvent(event *core.Event) (proto.Envelope, error) {
	switch event.Kind {
	case core.EventReceiveMessage:
		return proto.NewEnvelope(proto.EventReceiveMessage, proto.ReceiveMessage{
			ID:        event.Message.ID,
			RoomID:    event.Message.RoomID,
			UserID:    event.Message.UserID,
			Content:   event.Message.Content,
			CreatedAt: event.Message.CreatedAt,
			Sender:    event.Message.Sender,
		})
	case core.EventUserTyping:
		return proto.NewEnvelope(proto.EventUserTyping, proto.UserTyping{Name: event.User})
	case core.EventMessageDeleted:
		return proto.NewEnvelope(proto.EventMessageDeleted, proto.MessageDeleted{
			MessageID: event.MessageID,
			RoomID:    event.Room,
		})
	case core.EventRoomJoined:
		return proto.NewEnvelope(proto.EventRoomJoined, proto.RoomRef{RoomID: event.Room})
	case core.EventRoomLeft:
		return proto.NewEnvelope(proto.EventRoomLeft, proto.RoomRef{RoomID: event.Room})
	case core.EventError:
		if event.Error == nil {
			return proto.NewEnvelope(proto.EventError, proto.Error{Code: "unknown", Message: "unknown error"})
		}
		return proto.NewEnvelope(proto.EventError, proto.Error{
			Code:    event.Error.Code,
			Message: event.Error.Message,
			RoomID:  event.Room,
		})
	default:
		return proto.Envelope{}, fmt.Errorf("unsupported event kind %d", event.Kind)
	}
}
