package models

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// RoomMember is created on join and deleted on leave; it is never updated.
type RoomMember struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	RoomID   int64     `json:"room_id"`
	JoinedAt time.Time `json:"joined_at"`
	Role     Role      `json:"role"`
	Username string    `json:"username,omitempty"`
}
