package chat

import (
	"context"
	"errors"

	"github.com/umar/talkwave/internal/database"
	"github.com/umar/talkwave/internal/models"
)

type MembershipStore interface {
	IsRoomMember(ctx context.Context, roomID, userID int64) (bool, error)
	GetMemberRole(ctx context.Context, roomID, userID int64) (models.Role, error)
	ListRoomIDsForUser(ctx context.Context, userID int64) ([]int64, error)
}

// Membership answers whether a user may read or write a room. It never caches:
// rows can change between connect and any later event.
type Membership struct {
	store MembershipStore
}

func NewMembership(store MembershipStore) *Membership {
	return &Membership{store: store}
}

func (m *Membership) IsMember(ctx context.Context, userID, roomID int64) (bool, error) {
	return m.store.IsRoomMember(ctx, roomID, userID)
}

// Role reports ok=false when the user holds no membership in the room.
func (m *Membership) Role(ctx context.Context, userID, roomID int64) (role models.Role, ok bool, err error) {
	role, err = m.store.GetMemberRole(ctx, roomID, userID)
	if errors.Is(err, database.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (m *Membership) Rooms(ctx context.Context, userID int64) ([]int64, error) {
	return m.store.ListRoomIDsForUser(ctx, userID)
}
