package core

// TypingSignal relays "is typing" notices. It keeps no state: no dedup, no
// throttling, no expiry. Clients clear the indicator themselves.
type TypingSignal struct {
	broadcaster *Broadcaster
}

// NewTypingSignal builds a relay on top of the broadcaster.
func NewTypingSignal(b *Broadcaster) *TypingSignal {
	return &TypingSignal{broadcaster: b}
}

// Notify tells every other member of roomID that from is typing.
func (t *TypingSignal) Notify(roomID string, from *Client) int {
	return t.broadcaster.Send(roomID, &Event{
		Kind: EventUserTyping,
		Room: roomID,
		User: from.Name(),
	}, from.ID)
}
