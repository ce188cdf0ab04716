package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/umar/talkwave/internal/models"
)

// Store is the datastore surface the dispatcher needs.
type Store interface {
	MembershipStore
	CreateMessage(ctx context.Context, roomID, senderID int64, content string, msgType models.MessageType) (*models.MessageWithSender, error)
	GetUsersByIDs(ctx context.Context, ids []int64) ([]models.User, error)
}

// Dispatcher validates inbound events against membership and presence and
// tells the router what to fan out. Errors only ever go back to the
// originating connection.
type Dispatcher struct {
	hub        *Hub
	store      Store
	membership *Membership
	log        *slog.Logger
}

func NewDispatcher(hub *Hub, store Store, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		hub:        hub,
		store:      store,
		membership: NewMembership(store),
		log:        log,
	}
}

// Connect registers the connection, subscribes it to the user's personal room
// and to every room the user is a member of right now, then marks the user online.
func (d *Dispatcher) Connect(ctx context.Context, c Conn) error {
	id := c.Identity()
	if id.UserID == 0 {
		return ErrUnauthenticated
	}

	router := d.hub.Router
	router.Register(c)
	router.Subscribe(c, UserKey(id.UserID))

	rooms, err := d.membership.Rooms(ctx, id.UserID)
	if err != nil {
		d.log.Error("failed to load rooms on connect", "user_id", id.UserID, "error", err)
	}
	for _, roomID := range rooms {
		router.Subscribe(c, RoomKey(roomID))
	}

	d.hub.Presence.SetOnline(id, c.ID())
	d.log.Info("client connected", "user_id", id.UserID, "username", id.Username,
		"conn_id", c.ID(), "rooms", len(rooms))
	return nil
}

// Disconnect always succeeds and is safe to call more than once.
func (d *Dispatcher) Disconnect(c Conn) {
	id := c.Identity()
	d.hub.Router.Unregister(c.ID())
	d.hub.Presence.SetOffline(id.UserID, c.ID())
	d.log.Info("client disconnected", "user_id", id.UserID, "conn_id", c.ID())
}

// HandleRaw decodes one client frame and dispatches it, answering failures
// with an error event to c.
func (d *Dispatcher) HandleRaw(ctx context.Context, c Conn, data []byte) {
	in, err := DecodeInbound(data)
	if err == nil {
		err = d.Dispatch(ctx, c, in)
	}
	d.reply(c, err)
}

func (d *Dispatcher) reply(c Conn, err error) {
	if err == nil || errors.Is(err, errIgnored) || errors.Is(err, ErrUnauthenticated) {
		return
	}
	if errors.Is(err, ErrSendBufferFull) || errors.Is(err, ErrConnClosed) {
		d.log.Warn("failed to answer event", "conn_id", c.ID(), "error", err)
		return
	}

	var evtErr *EventError
	if !errors.As(err, &evtErr) {
		evtErr = newPersistenceError(err)
	}
	if evtErr.Kind == KindPersistence {
		d.log.Error("event failed", "user_id", c.Identity().UserID, "error", err)
	} else {
		d.log.Debug("event rejected", "user_id", c.Identity().UserID, "kind", evtErr.Kind.String(), "error", err)
	}
	d.SendError(c, evtErr.Message)
}

// SendError sends an error event to c only.
func (d *Dispatcher) SendError(c Conn, message string) {
	if err := d.hub.Router.SendTo(c, TypeError, ErrorPayload{Message: message}); err != nil {
		d.log.Warn("failed to send error event", "conn_id", c.ID(), "error", err)
	}
}

// Dispatch runs one decoded event. Events from connections without an
// identity are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, c Conn, in Inbound) error {
	if c.Identity().UserID == 0 {
		return ErrUnauthenticated
	}

	switch e := in.(type) {
	case SendMessage:
		return d.sendMessage(ctx, c, e)
	case JoinRoom:
		return d.joinRoom(ctx, c, e)
	case LeaveRoom:
		return d.leaveRoom(c, e)
	case Typing:
		return d.typing(c, e)
	case GetOnlineUsers:
		return d.onlineUsers(ctx, c)
	case Ping:
		return d.hub.Router.SendTo(c, TypePong, nil)
	}
	return newValidationError(MsgUnknownEvent, nil)
}

func (d *Dispatcher) sendMessage(ctx context.Context, c Conn, e SendMessage) error {
	if e.RoomID == 0 || e.Content == "" {
		return newValidationError(MsgRoomAndContentRequired, nil)
	}
	id := c.Identity()

	if err := d.requireMember(ctx, id.UserID, e.RoomID); err != nil {
		return err
	}

	msg, err := d.store.CreateMessage(ctx, e.RoomID, id.UserID, e.Content, e.MessageType)
	if err != nil {
		return newPersistenceError(err)
	}

	n := d.hub.Router.Publish(RoomKey(e.RoomID), TypeNewMessage, NewMessagePayloadFrom(msg), "")
	d.log.Debug("message sent", "user_id", id.UserID, "room_id", e.RoomID, "message_id", msg.ID, "delivered", n)
	return nil
}

func (d *Dispatcher) joinRoom(ctx context.Context, c Conn, e JoinRoom) error {
	if e.RoomID == 0 {
		return newValidationError(MsgRoomIDRequired, nil)
	}
	id := c.Identity()

	if err := d.requireMember(ctx, id.UserID, e.RoomID); err != nil {
		return err
	}

	room := RoomKey(e.RoomID)
	d.hub.Router.Subscribe(c, room)
	d.hub.Router.Publish(room, TypeUserJoinedRoom, RoomEventPayload{
		UserID:   id.UserID,
		Username: id.Username,
		RoomID:   e.RoomID,
	}, "")
	d.log.Debug("joined room", "user_id", id.UserID, "room_id", e.RoomID)
	return nil
}

func (d *Dispatcher) leaveRoom(c Conn, e LeaveRoom) error {
	if e.RoomID == 0 {
		return newValidationError(MsgRoomIDRequired, nil)
	}
	id := c.Identity()

	room := RoomKey(e.RoomID)
	d.hub.Router.Unsubscribe(c.ID(), room)
	d.hub.Router.Publish(room, TypeUserLeftRoom, RoomEventPayload{
		UserID:   id.UserID,
		Username: id.Username,
		RoomID:   e.RoomID,
	}, "")
	d.log.Debug("left room", "user_id", id.UserID, "room_id", e.RoomID)
	return nil
}

func (d *Dispatcher) typing(c Conn, e Typing) error {
	if e.RoomID == 0 {
		return errIgnored
	}
	id := c.Identity()
	d.hub.Router.Publish(RoomKey(e.RoomID), TypeUserTyping, TypingPayload{
		UserID:   id.UserID,
		Username: id.Username,
		RoomID:   e.RoomID,
		Typing:   e.Typing,
	}, c.ID())
	return nil
}

func (d *Dispatcher) onlineUsers(ctx context.Context, c Conn) error {
	users, err := d.store.GetUsersByIDs(ctx, d.hub.Presence.ListOnline())
	if err != nil {
		return newPersistenceError(err)
	}

	return d.hub.Router.SendTo(c, TypeOnlineUsersList, NewOnlineUsersPayload(users))
}

func (d *Dispatcher) requireMember(ctx context.Context, userID, roomID int64) error {
	ok, err := d.membership.IsMember(ctx, userID, roomID)
	if err != nil {
		return newPersistenceError(err)
	}
	if !ok {
		return newAuthorizationError(MsgNotAMember)
	}
	return nil
}
