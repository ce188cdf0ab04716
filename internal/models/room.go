package models

import "time"

// ChatRoom owns its messages and memberships; deleting a room removes both.
type ChatRoom struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPrivate   bool      `json:"is_private"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type RoomWithCount struct {
	ChatRoom
	MemberCount int `json:"member_count"`
}
