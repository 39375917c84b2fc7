package core

import (
	"time"

	"github.com/Ladkan/MeChat/internal/store"
)

// Message is the domain model for a chat message as delivered to clients.
type Message struct {
	ID        string
	RoomID    string
	UserID    string
	Content   string
	Sender    string
	CreatedAt time.Time
	DeletedAt *time.Time
}

func messageFromStore(m *store.Message, sender string) Message {
	return Message{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Content:   m.Content,
		Sender:    sender,
		CreatedAt: m.CreatedAt,
		DeletedAt: m.DeletedAt,
	}
}
