package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/umar/talkwave/internal/database"
	"github.com/umar/talkwave/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn records every frame it is sent.
type fakeConn struct {
	id       ConnID
	identity Identity

	mu     sync.Mutex
	frames []WSMessage
	fail   error
	closed bool
}

func newFakeConn(id string, userID int64, username string) *fakeConn {
	return &fakeConn{id: ConnID(id), identity: Identity{UserID: userID, Username: username}}
}

func (c *fakeConn) ID() ConnID         { return c.id }
func (c *fakeConn) Identity() Identity { return c.identity }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.fail != nil {
		return c.fail
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	c.frames = append(c.frames, msg)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) events() []WSMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WSMessage(nil), c.frames...)
}

func (c *fakeConn) eventTypes() []string {
	var types []string
	for _, f := range c.events() {
		types = append(types, f.Type)
	}
	return types
}

func (c *fakeConn) ofType(t string) []WSMessage {
	var out []WSMessage
	for _, f := range c.events() {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func decodeAs[T any](t *testing.T, msg WSMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}

func frame(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	data, err := NewWSMessage(eventType, payload)
	require.NoError(t, err)
	return data
}

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	users     map[int64]models.User
	members   map[int64]map[int64]models.Role
	messages  []models.MessageWithSender
	createErr error
	memberErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[int64]models.User),
		members: make(map[int64]map[int64]models.Role),
	}
}

func (s *memStore) addUser(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = models.User{ID: id, Username: name, CreatedAt: time.Unix(0, 0).UTC()}
}

func (s *memStore) addMember(roomID, userID int64, role models.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[roomID] == nil {
		s.members[roomID] = make(map[int64]models.Role)
	}
	s.members[roomID][userID] = role
}

func (s *memStore) removeMember(roomID, userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[roomID], userID)
}

func (s *memStore) stored() []models.MessageWithSender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MessageWithSender(nil), s.messages...)
}

func (s *memStore) IsRoomMember(_ context.Context, roomID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memberErr != nil {
		return false, s.memberErr
	}
	_, ok := s.members[roomID][userID]
	return ok, nil
}

func (s *memStore) GetMemberRole(_ context.Context, roomID, userID int64) (models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.members[roomID][userID]
	if !ok {
		return "", database.ErrNotFound
	}
	return role, nil
}

func (s *memStore) ListRoomIDsForUser(_ context.Context, userID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memberErr != nil {
		return nil, s.memberErr
	}
	var ids []int64
	for roomID, users := range s.members {
		if _, ok := users[userID]; ok {
			ids = append(ids, roomID)
		}
	}
	return ids, nil
}

func (s *memStore) CreateMessage(_ context.Context, roomID, senderID int64, content string, msgType models.MessageType) (*models.MessageWithSender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	user, ok := s.users[senderID]
	if !ok {
		return nil, errors.New("sender not found")
	}
	m := models.MessageWithSender{
		Message: models.Message{
			ID:          int64(len(s.messages) + 1),
			Content:     content,
			SenderID:    senderID,
			RoomID:      roomID,
			Timestamp:   time.Now().UTC(),
			MessageType: msgType,
		},
		SenderUsername: user.Username,
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *memStore) GetUsersByIDs(_ context.Context, ids []int64) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := []models.User{}
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

type testServer struct {
	hub        *Hub
	store      *memStore
	dispatcher *Dispatcher
	nextConn   int
}

func newTestServer() *testServer {
	hub := NewHub(discardLogger(), nil)
	store := newMemStore()
	return &testServer{hub: hub, store: store, dispatcher: NewDispatcher(hub, store, discardLogger())}
}

func (s *testServer) connect(t *testing.T, userID int64, username string) *fakeConn {
	t.Helper()
	s.nextConn++
	c := newFakeConn(fmt.Sprintf("%s-%d", username, s.nextConn), userID, username)
	require.NoError(t, s.dispatcher.Connect(context.Background(), c))
	return c
}

func (s *testServer) send(t *testing.T, c *fakeConn, eventType string, payload any) {
	t.Helper()
	s.dispatcher.HandleRaw(context.Background(), c, frame(t, eventType, payload))
}
