package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/umar/talkwave/internal/models"
)

const room5 = int64(5)

// threeUsers sets up alice (member of room 5), bob (member of room 6 only)
// and carol (no memberships), all connected.
func threeUsers(t *testing.T) (*testServer, *fakeConn, *fakeConn, *fakeConn) {
	t.Helper()
	s := newTestServer()
	s.store.addUser(1, "alice")
	s.store.addUser(2, "bob")
	s.store.addUser(3, "carol")
	s.store.addMember(room5, 1, models.RoleAdmin)
	s.store.addMember(6, 2, models.RoleMember)

	a := s.connect(t, 1, "alice")
	b := s.connect(t, 2, "bob")
	c := s.connect(t, 3, "carol")
	for _, conn := range []*fakeConn{a, b, c} {
		conn.reset()
	}
	return s, a, b, c
}

func errorMessages(t *testing.T, c *fakeConn) []string {
	var out []string
	for _, f := range c.ofType(TypeError) {
		out = append(out, decodeAs[ErrorPayload](t, f).Message)
	}
	return out
}

func TestDispatcher_ConnectSubscribesAndAnnounces(t *testing.T) {
	req := require.New(t)
	s := newTestServer()
	s.store.addUser(1, "alice")
	s.store.addUser(2, "bob")
	s.store.addMember(room5, 1, models.RoleMember)
	s.store.addMember(7, 1, models.RoleMember)

	b := s.connect(t, 2, "bob")
	b.reset()
	a := s.connect(t, 1, "alice")

	router := s.hub.Router
	req.True(router.IsSubscribed(a.ID(), UserKey(1)))
	req.True(router.IsSubscribed(a.ID(), RoomKey(room5)))
	req.True(router.IsSubscribed(a.ID(), RoomKey(7)))
	req.True(s.hub.IsOnline(1))

	status := b.ofType(TypeUserStatusChange)
	req.Len(status, 1)
	req.Equal(UserStatusPayload{UserID: 1, Username: "alice", IsOnline: true}, decodeAs[UserStatusPayload](t, status[0]))
}

func TestDispatcher_ConnectRejectsAnonymous(t *testing.T) {
	req := require.New(t)
	s := newTestServer()
	anon := newFakeConn("anon", 0, "")

	err := s.dispatcher.Connect(context.Background(), anon)

	req.ErrorIs(err, ErrUnauthenticated)
	req.Zero(s.hub.Router.Connections())
	req.Empty(s.hub.ListOnline())
}

func TestDispatcher_ConnectSurvivesMembershipLoadFailure(t *testing.T) {
	req := require.New(t)
	s := newTestServer()
	s.store.memberErr = errors.New("db down")

	a := s.connect(t, 1, "alice")

	req.True(s.hub.Router.IsSubscribed(a.ID(), UserKey(1)))
	req.True(s.hub.IsOnline(1))
}

func TestDispatcher_MemberSendReachesRoomOnly(t *testing.T) {
	req := require.New(t)
	s, a, b, _ := threeUsers(t)
	a2 := s.connect(t, 1, "alice")
	a.reset()

	s.send(t, a, TypeSendMessage, map[string]any{"room_id": room5, "content": "hi"})

	for _, conn := range []*fakeConn{a, a2} {
		msgs := conn.ofType(TypeNewMessage)
		req.Len(msgs, 1)
		got := decodeAs[NewMessagePayload](t, msgs[0])
		req.Equal("hi", got.Content)
		req.Equal(int64(1), got.SenderID)
		req.Equal("alice", got.SenderUsername)
		req.Equal(room5, got.RoomID)
		req.Equal(models.MessageText, got.MessageType)
	}
	req.Empty(b.events())
	req.Len(s.store.stored(), 1)
}

func TestDispatcher_NonMemberSendIsRejected(t *testing.T) {
	req := require.New(t)
	s, a, _, c := threeUsers(t)

	s.send(t, c, TypeSendMessage, map[string]any{"room_id": room5, "content": "hi"})

	req.Equal([]string{MsgNotAMember}, errorMessages(t, c))
	req.Empty(s.store.stored())
	req.Empty(a.events())
}

func TestDispatcher_SendRechecksMembership(t *testing.T) {
	req := require.New(t)
	s, a, _, _ := threeUsers(t)
	s.store.removeMember(room5, 1)

	s.send(t, a, TypeSendMessage, map[string]any{"room_id": room5, "content": "hi"})

	req.Equal([]string{MsgNotAMember}, errorMessages(t, a))
	req.Empty(s.store.stored())
	req.Empty(a.ofType(TypeNewMessage))
}

func TestDispatcher_SendValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		message string
	}{
		{name: "missing room", payload: map[string]any{"content": "hi"}, message: MsgRoomAndContentRequired},
		{name: "missing content", payload: map[string]any{"room_id": room5}, message: MsgRoomAndContentRequired},
		{name: "blank content", payload: map[string]any{"room_id": room5, "content": " \t"}, message: MsgRoomAndContentRequired},
		{name: "bad type", payload: map[string]any{"room_id": room5, "content": "x", "message_type": "gif"}, message: MsgInvalidMessageType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			s, a, _, _ := threeUsers(t)

			s.send(t, a, TypeSendMessage, tt.payload)

			req.Equal([]string{tt.message}, errorMessages(t, a))
			req.Empty(s.store.stored())
		})
	}
}

func TestDispatcher_PersistenceFailureIsNotBroadcast(t *testing.T) {
	req := require.New(t)
	s, a, _, _ := threeUsers(t)
	s.store.createErr = errors.New("disk full")

	s.send(t, a, TypeSendMessage, map[string]any{"room_id": room5, "content": "hi"})

	req.Equal([]string{"disk full"}, errorMessages(t, a))
	req.Empty(a.ofType(TypeNewMessage))

	s.store.createErr = nil
	s.send(t, a, TypeSendMessage, map[string]any{"room_id": room5, "content": "again"})
	req.Len(a.ofType(TypeNewMessage), 1)
}

func TestDispatcher_JoinRoom(t *testing.T) {
	req := require.New(t)
	s, a, _, c := threeUsers(t)
	s.hub.Router.Unsubscribe(a.ID(), RoomKey(room5))

	s.send(t, a, TypeJoinRoom, map[string]any{"room_id": room5})
	s.send(t, a, TypeJoinRoom, map[string]any{"room_id": room5})

	req.Equal(1, s.hub.Router.Subscribers(RoomKey(room5)))
	joined := a.ofType(TypeUserJoinedRoom)
	req.Len(joined, 2)
	req.Equal(RoomEventPayload{UserID: 1, Username: "alice", RoomID: room5}, decodeAs[RoomEventPayload](t, joined[0]))

	s.send(t, c, TypeJoinRoom, map[string]any{"room_id": room5})
	req.Equal([]string{MsgNotAMember}, errorMessages(t, c))
	req.False(s.hub.Router.IsSubscribed(c.ID(), RoomKey(room5)))

	s.send(t, c, TypeJoinRoom, map[string]any{})
	req.Equal([]string{MsgNotAMember, MsgRoomIDRequired}, errorMessages(t, c))
}

func TestDispatcher_JoinPicksUpNewMembership(t *testing.T) {
	req := require.New(t)
	s, a, _, c := threeUsers(t)
	s.store.addMember(room5, 3, models.RoleMember)

	s.send(t, c, TypeJoinRoom, map[string]any{"room_id": room5})

	req.True(s.hub.Router.IsSubscribed(c.ID(), RoomKey(room5)))
	req.Len(a.ofType(TypeUserJoinedRoom), 1)
	req.Empty(errorMessages(t, c))
}

func TestDispatcher_LeaveRoom(t *testing.T) {
	req := require.New(t)
	s, a, b, c := threeUsers(t)
	s.store.addMember(room5, 2, models.RoleMember)
	s.send(t, b, TypeJoinRoom, map[string]any{"room_id": room5})
	a.reset()

	s.send(t, b, TypeLeaveRoom, map[string]any{"room_id": room5})

	req.False(s.hub.Router.IsSubscribed(b.ID(), RoomKey(room5)))
	left := a.ofType(TypeUserLeftRoom)
	req.Len(left, 1)
	req.Equal(RoomEventPayload{UserID: 2, Username: "bob", RoomID: room5}, decodeAs[RoomEventPayload](t, left[0]))

	s.send(t, c, TypeLeaveRoom, map[string]any{"room_id": 99})
	req.Empty(errorMessages(t, c))

	s.send(t, c, TypeLeaveRoom, map[string]any{})
	req.Equal([]string{MsgRoomIDRequired}, errorMessages(t, c))
}

func TestDispatcher_TypingExcludesSender(t *testing.T) {
	req := require.New(t)
	s, a, b, c := threeUsers(t)
	s.store.addMember(room5, 2, models.RoleMember)
	s.send(t, b, TypeJoinRoom, map[string]any{"room_id": room5})
	a.reset()
	b.reset()

	s.send(t, a, TypeTypingStart, map[string]any{"room_id": room5})
	s.send(t, a, TypeTypingStop, map[string]any{"room_id": room5})

	req.Empty(a.events())
	req.Empty(c.events())
	typing := b.ofType(TypeUserTyping)
	req.Len(typing, 2)
	req.Equal(TypingPayload{UserID: 1, Username: "alice", RoomID: room5, Typing: true}, decodeAs[TypingPayload](t, typing[0]))
	req.False(decodeAs[TypingPayload](t, typing[1]).Typing)

	s.send(t, a, TypeTypingStart, map[string]any{})
	req.Empty(a.events())
}

func TestDispatcher_DisconnectGoesOffline(t *testing.T) {
	req := require.New(t)
	s, a, b, _ := threeUsers(t)

	s.dispatcher.Disconnect(a)
	s.dispatcher.Disconnect(a)

	req.False(s.hub.IsOnline(1))
	req.Zero(s.hub.Router.Subscribers(RoomKey(room5)))
	status := b.ofType(TypeUserStatusChange)
	req.Len(status, 1)
	req.Equal(UserStatusPayload{UserID: 1, Username: "alice", IsOnline: false}, decodeAs[UserStatusPayload](t, status[0]))
	req.Empty(a.events())
}

func TestDispatcher_SecondConnectionKeepsUserOnline(t *testing.T) {
	req := require.New(t)
	s, a, b, _ := threeUsers(t)
	a2 := s.connect(t, 1, "alice")

	s.dispatcher.Disconnect(a)

	req.True(s.hub.IsOnline(1))
	req.Empty(b.ofType(TypeUserStatusChange))

	s.dispatcher.Disconnect(a2)
	req.False(s.hub.IsOnline(1))
	req.Len(b.ofType(TypeUserStatusChange), 1)
}

func TestDispatcher_GetOnlineUsers(t *testing.T) {
	req := require.New(t)
	s, a, _, c := threeUsers(t)
	s.dispatcher.Disconnect(c)

	s.send(t, a, TypeGetOnlineUsers, nil)

	lists := a.ofType(TypeOnlineUsersList)
	req.Len(lists, 1)
	payload := decodeAs[OnlineUsersPayload](t, lists[0])
	req.Len(payload.Users, 2)
	req.Equal("alice", payload.Users[0].Username)
	req.Equal("bob", payload.Users[1].Username)
	req.True(payload.Users[0].IsOnline)
}

func TestDispatcher_PingAndUnknown(t *testing.T) {
	req := require.New(t)
	s, a, _, _ := threeUsers(t)

	s.send(t, a, TypePing, nil)
	s.send(t, a, "dance", nil)
	s.dispatcher.HandleRaw(context.Background(), a, []byte("{"))

	req.Equal([]string{TypePong, TypeError, TypeError}, a.eventTypes())
	req.Equal([]string{MsgUnknownEvent, MsgInvalidPayload}, errorMessages(t, a))
}

func TestDispatcher_ErrorsStayWithOriginator(t *testing.T) {
	req := require.New(t)
	s, a, b, c := threeUsers(t)

	s.send(t, c, TypeSendMessage, map[string]any{"room_id": room5, "content": "hi"})
	s.send(t, c, TypeJoinRoom, map[string]any{})

	req.Len(errorMessages(t, c), 2)
	req.Empty(a.events())
	req.Empty(b.events())
}

func TestDispatcher_DispatchDropsAnonymous(t *testing.T) {
	s := newTestServer()
	anon := newFakeConn("anon", 0, "")
	err := s.dispatcher.Dispatch(context.Background(), anon, Ping{})
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestDispatcher_ConcurrentSendsKeepRoomOrder(t *testing.T) {
	req := require.New(t)
	s := newTestServer()
	const senders = 4
	const perSender = 20
	for i := int64(1); i <= senders; i++ {
		s.store.addUser(i, fmt.Sprint("user", i))
		s.store.addMember(room5, i, models.RoleMember)
	}
	conns := make([]*fakeConn, senders)
	for i := range conns {
		conns[i] = s.connect(t, int64(i+1), fmt.Sprint("user", i+1))
	}
	for _, c := range conns {
		c.reset()
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *fakeConn) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				s.send(t, c, TypeSendMessage, map[string]any{"room_id": room5, "content": fmt.Sprint(c.ID(), "-", i)})
			}
		}(c)
	}
	wg.Wait()

	order := func(c *fakeConn) []string {
		var out []string
		for _, f := range c.ofType(TypeNewMessage) {
			out = append(out, decodeAs[NewMessagePayload](t, f).Content)
		}
		return out
	}
	want := order(conns[0])
	req.Len(want, senders*perSender)
	for _, c := range conns[1:] {
		req.Equal(want, order(c))
	}
}
