package models

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile:
		return true
	}
	return false
}

// Message is immutable once stored.
type Message struct {
	ID          int64       `json:"id"`
	Content     string      `json:"content"`
	SenderID    int64       `json:"sender_id"`
	RoomID      int64       `json:"room_id"`
	Timestamp   time.Time   `json:"timestamp"`
	MessageType MessageType `json:"message_type"`
}

type MessageWithSender struct {
	Message
	SenderUsername string `json:"sender_username"`
}
