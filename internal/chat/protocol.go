package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/umar/talkwave/internal/models"
)

const (
	TypeSendMessage    = "send_message"
	TypeJoinRoom       = "join_room_socket"
	TypeLeaveRoom      = "leave_room_socket"
	TypeTypingStart    = "typing_start"
	TypeTypingStop     = "typing_stop"
	TypeGetOnlineUsers = "get_online_users"
	TypePing           = "ping"

	TypeUserStatusChange    = "user_status_change"
	TypeNewMessage          = "new_message"
	TypeUserJoinedRoom      = "user_joined_room"
	TypeUserLeftRoom        = "user_left_room"
	TypeUserTyping          = "user_typing"
	TypeOnlineUsersList     = "online_users_list"
	TypeRoomMembershipAdded = "room_membership_added"
	TypeError               = "error"
	TypePong                = "pong"
)

var validate = validator.New()

// errIgnored marks inbound events that are dropped without telling the client.
var errIgnored = errors.New("event ignored")

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is one decoded client event. Each event name has its own variant.
type Inbound interface {
	EventType() string
}

type SendMessage struct {
	RoomID      int64              `json:"room_id" validate:"required"`
	Content     string             `json:"content" validate:"required,max=16000"`
	MessageType models.MessageType `json:"message_type" validate:"omitempty,oneof=text image file"`
}

type JoinRoom struct {
	RoomID int64 `json:"room_id" validate:"required"`
}

type LeaveRoom struct {
	RoomID int64 `json:"room_id" validate:"required"`
}

type Typing struct {
	RoomID int64 `json:"room_id" validate:"required"`
	Typing bool  `json:"-"`
}

type GetOnlineUsers struct{}

type Ping struct{}

func (SendMessage) EventType() string    { return TypeSendMessage }
func (JoinRoom) EventType() string       { return TypeJoinRoom }
func (LeaveRoom) EventType() string      { return TypeLeaveRoom }
func (GetOnlineUsers) EventType() string { return TypeGetOnlineUsers }
func (Ping) EventType() string           { return TypePing }

func (t Typing) EventType() string {
	if t.Typing {
		return TypeTypingStart
	}
	return TypeTypingStop
}

// DecodeInbound parses a client frame into its variant and validates it.
// Validation failures come back as *EventError carrying the client-facing message.
func DecodeInbound(data []byte) (Inbound, error) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, newValidationError(MsgInvalidPayload, err)
	}

	var in Inbound
	var err error
	switch msg.Type {
	case TypeSendMessage:
		var p SendMessage
		err = decodePayload(msg.Payload, &p)
		p.Content = strings.TrimSpace(p.Content)
		if p.MessageType == "" {
			p.MessageType = models.MessageText
		}
		in = p
	case TypeJoinRoom:
		var p JoinRoom
		err = decodePayload(msg.Payload, &p)
		in = p
	case TypeLeaveRoom:
		var p LeaveRoom
		err = decodePayload(msg.Payload, &p)
		in = p
	case TypeTypingStart, TypeTypingStop:
		var p Typing
		err = decodePayload(msg.Payload, &p)
		p.Typing = msg.Type == TypeTypingStart
		in = p
	case TypeGetOnlineUsers:
		in = GetOnlineUsers{}
	case TypePing:
		in = Ping{}
	default:
		return nil, newValidationError(MsgUnknownEvent, nil)
	}
	if err != nil {
		return nil, newValidationError(MsgInvalidPayload, err)
	}

	if err := validate.Struct(in); err != nil {
		return nil, validationFailure(in, err)
	}
	return in, nil
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func validationFailure(in Inbound, err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return newValidationError(MsgInvalidPayload, err)
	}
	if fieldErrs[0].Tag() != "required" {
		switch fieldErrs[0].Field() {
		case "MessageType":
			return newValidationError(MsgInvalidMessageType, err)
		case "Content":
			return newValidationError(MsgContentTooLong, err)
		}
		return newValidationError(MsgInvalidPayload, err)
	}

	switch in.(type) {
	case SendMessage:
		return newValidationError(MsgRoomAndContentRequired, err)
	case JoinRoom, LeaveRoom:
		return newValidationError(MsgRoomIDRequired, err)
	case Typing:
		return errIgnored
	}
	return newValidationError(MsgInvalidPayload, err)
}

type UserStatusPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsOnline bool   `json:"is_online"`
}

type NewMessagePayload struct {
	ID             int64              `json:"id"`
	Content        string             `json:"content"`
	SenderID       int64              `json:"sender_id"`
	SenderUsername string             `json:"sender_username"`
	RoomID         int64              `json:"room_id"`
	Timestamp      string             `json:"timestamp"`
	MessageType    models.MessageType `json:"message_type"`
}

type RoomEventPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	RoomID   int64  `json:"room_id"`
}

type TypingPayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	RoomID   int64  `json:"room_id"`
	Typing   bool   `json:"typing"`
}

type OnlineUser struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	IsOnline  bool      `json:"is_online"`
	CreatedAt time.Time `json:"created_at"`
}

type OnlineUsersPayload struct {
	Users []OnlineUser `json:"users"`
}

type MembershipPayload struct {
	RoomID int64       `json:"room_id"`
	Role   models.Role `json:"role"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessagePayloadFrom renders a stored message the way clients receive it.
func NewMessagePayloadFrom(m *models.MessageWithSender) NewMessagePayload {
	return NewMessagePayload{
		ID:             m.ID,
		Content:        m.Content,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		RoomID:         m.RoomID,
		Timestamp:      m.Timestamp.UTC().Format(time.RFC3339Nano),
		MessageType:    m.MessageType,
	}
}

// NewOnlineUsersPayload renders the users currently marked online.
func NewOnlineUsersPayload(users []models.User) OnlineUsersPayload {
	return OnlineUsersPayload{
		Users: lo.Map(users, func(u models.User, _ int) OnlineUser {
			return OnlineUser{ID: u.ID, Username: u.Username, IsOnline: true, CreatedAt: u.CreatedAt}
		}),
	}
}

func NewWSMessage(msgType string, payload interface{}) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	msg := WSMessage{Type: msgType, Payload: p}
	return json.Marshal(msg)
}
