package core

import (
	"context"
	"errors"

	"github.com/Ladkan/MeChat/internal/auth"
	"github.com/Ladkan/MeChat/internal/store"
)

// JoinPolicy decides whether an identity may join a room.
type JoinPolicy interface {
	CanJoin(ctx context.Context, who auth.Identity, roomID string) (bool, error)
}

// AllowAll admits any authenticated identity to any room id.
type AllowAll struct{}

// CanJoin implements JoinPolicy.
func (AllowAll) CanJoin(context.Context, auth.Identity, string) (bool, error) {
	return true, nil
}

// KnownRoomPolicy admits joins only to rooms the room service has created.
type KnownRoomPolicy struct {
	Rooms store.RoomStore
}

// CanJoin implements JoinPolicy.
func (p KnownRoomPolicy) CanJoin(ctx context.Context, _ auth.Identity, roomID string) (bool, error) {
	if _, err := p.Rooms.GetRoomByID(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
