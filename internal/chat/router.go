package chat

import (
	"fmt"
	"log/slog"
	"sync"
)

// ConnID identifies one live socket connection.
type ConnID string

// Identity is resolved once at connect time and never re-derived.
type Identity struct {
	UserID   int64
	Username string
}

// Conn is the opaque connection handle the router delivers to. Send must not
// block; a failed Send only affects that connection.
type Conn interface {
	ID() ConnID
	Identity() Identity
	Send(data []byte) error
	Close()
}

func RoomKey(roomID int64) string { return fmt.Sprintf("room_%d", roomID) }

func UserKey(userID int64) string { return fmt.Sprintf("user_%d", userID) }

type roomGroup struct {
	mu      sync.Mutex
	members map[ConnID]Conn
}

// Router maps room keys to the connections currently subscribed to them.
// Publishing to a room holds that room's lock for the whole delivery, so
// events published to one room reach every subscriber in publish order.
// Lock order is Router.mu before roomGroup.mu.
type Router struct {
	mu     sync.RWMutex
	conns  map[ConnID]Conn
	rooms  map[string]*roomGroup
	joined map[ConnID]map[string]struct{}
	log    *slog.Logger
}

func NewRouter(log *slog.Logger) *Router {
	return &Router{
		conns:  make(map[ConnID]Conn),
		rooms:  make(map[string]*roomGroup),
		joined: make(map[ConnID]map[string]struct{}),
		log:    log,
	}
}

func (r *Router) Register(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
	if r.joined[c.ID()] == nil {
		r.joined[c.ID()] = make(map[string]struct{})
	}
}

// Unregister forgets the connection and drops all of its subscriptions.
func (r *Router) Unregister(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.joined[id] {
		r.removeLocked(id, room)
	}
	delete(r.joined, id)
	delete(r.conns, id)
}

// Subscribe adds a registered connection to room and reports whether it was
// newly added.
func (r *Router) Subscribe(c Conn, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[c.ID()]
	if !ok {
		return false
	}
	if _, already := rooms[room]; already {
		return false
	}

	g := r.rooms[room]
	if g == nil {
		g = &roomGroup{members: make(map[ConnID]Conn)}
		r.rooms[room] = g
	}
	g.mu.Lock()
	g.members[c.ID()] = c
	g.mu.Unlock()
	rooms[room] = struct{}{}
	return true
}

// Unsubscribe removes the connection from room; it is a no-op when absent.
func (r *Router) Unsubscribe(id ConnID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.joined[id][room]; !ok {
		return false
	}
	r.removeLocked(id, room)
	delete(r.joined[id], room)
	return true
}

func (r *Router) removeLocked(id ConnID, room string) {
	g := r.rooms[room]
	if g == nil {
		return
	}
	g.mu.Lock()
	delete(g.members, id)
	empty := len(g.members) == 0
	g.mu.Unlock()
	if empty {
		delete(r.rooms, room)
	}
}

// Publish delivers the event to every subscriber of room except exclude and
// returns how many connections accepted it.
func (r *Router) Publish(room, event string, payload any, exclude ConnID) int {
	data, err := NewWSMessage(event, payload)
	if err != nil {
		r.log.Error("failed to encode event", "event", event, "error", err)
		return 0
	}

	r.mu.RLock()
	g := r.rooms[room]
	if g == nil {
		r.mu.RUnlock()
		return 0
	}
	g.mu.Lock()
	r.mu.RUnlock()
	defer g.mu.Unlock()

	delivered := 0
	for id, c := range g.members {
		if id == exclude {
			continue
		}
		if r.deliver(c, event, data) {
			delivered++
		}
	}
	return delivered
}

// PublishGlobal delivers the event to every registered connection.
func (r *Router) PublishGlobal(event string, payload any) int {
	data, err := NewWSMessage(event, payload)
	if err != nil {
		r.log.Error("failed to encode event", "event", event, "error", err)
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, c := range r.conns {
		if r.deliver(c, event, data) {
			delivered++
		}
	}
	return delivered
}

// SendTo delivers the event to a single connection.
func (r *Router) SendTo(c Conn, event string, payload any) error {
	data, err := NewWSMessage(event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}
	return c.Send(data)
}

func (r *Router) deliver(c Conn, event string, data []byte) bool {
	if err := c.Send(data); err != nil {
		r.log.Warn("dropped event for connection",
			"event", event, "conn_id", c.ID(), "user_id", c.Identity().UserID, "error", err)
		return false
	}
	return true
}

func (r *Router) IsSubscribed(id ConnID, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.joined[id][room]
	return ok
}

func (r *Router) Subscribers(room string) int {
	r.mu.RLock()
	g := r.rooms[room]
	r.mu.RUnlock()
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (r *Router) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every registered connection. Their read loops then run the
// usual disconnect cleanup.
func (r *Router) CloseAll() {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Close()
	}
}
