package core

import "github.com/rs/zerolog"

// Broadcaster fans events out to the members of a room.
type Broadcaster struct {
	registry *Registry
	log      *zerolog.Logger
}

// NewBroadcaster builds a broadcaster over the registry.
func NewBroadcaster(registry *Registry, logger *zerolog.Logger) *Broadcaster {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broadcaster{registry: registry, log: logger}
}

// Send delivers event to every client currently in roomID except excludeID
// (empty excludes nobody) and returns how many clients accepted it. Delivery is
// fire-and-forget: a client whose queue is full misses the event.
func (b *Broadcaster) Send(roomID string, event *Event, excludeID string) int {
	delivered := 0
	for _, client := range b.registry.Members(roomID) {
		if client.ID == excludeID {
			continue
		}
		if deliver(client, event) {
			delivered++
			continue
		}
		b.log.Warn().
			Str("client_id", client.ID).
			Str("room_id", roomID).
			Msg("client queue full, event dropped")
	}
	return delivered
}

// deliver is a non-blocking send to a single client.
func deliver(client *Client, event *Event) bool {
	select {
	case client.Events <- event:
		return true
	default:
		return false
	}
}
