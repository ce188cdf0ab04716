package chat

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// Transition is emitted when a user goes from offline to online or back.
type Transition struct {
	UserID   int64
	Username string
	Online   bool
}

type presenceEntry struct {
	username string
	conns    map[ConnID]struct{}
}

// Presence tracks which users are online. A user stays online while at least
// one of their connections is attached, and onChange fires only on the
// offline/online edges. onChange runs under the tracker lock, so transitions
// are observed in the order they happened; it must not block.
type Presence struct {
	mu       sync.Mutex
	users    map[int64]*presenceEntry
	onChange func(Transition)
}

func NewPresence(onChange func(Transition)) *Presence {
	return &Presence{
		users:    make(map[int64]*presenceEntry),
		onChange: onChange,
	}
}

// SetOnline attaches conn to the user. It reports whether the user just came
// online; attaching an already attached connection changes nothing.
func (p *Presence) SetOnline(id Identity, conn ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[id.UserID]
	if !ok {
		entry = &presenceEntry{username: id.Username, conns: make(map[ConnID]struct{})}
		p.users[id.UserID] = entry
	}
	if _, attached := entry.conns[conn]; attached {
		return false
	}
	entry.conns[conn] = struct{}{}
	if len(entry.conns) > 1 {
		return false
	}

	p.emit(Transition{UserID: id.UserID, Username: entry.username, Online: true})
	return true
}

// SetOffline detaches conn and reports whether the user just went offline.
func (p *Presence) SetOffline(userID int64, conn ConnID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.users[userID]
	if !ok {
		return false
	}
	if _, attached := entry.conns[conn]; !attached {
		return false
	}
	delete(entry.conns, conn)
	if len(entry.conns) > 0 {
		return false
	}

	delete(p.users, userID)
	p.emit(Transition{UserID: userID, Username: entry.username, Online: false})
	return true
}

func (p *Presence) IsOnline(userID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.users[userID]
	return ok
}

// ListOnline returns the online user ids in ascending order.
func (p *Presence) ListOnline() []int64 {
	p.mu.Lock()
	ids := lo.Keys(p.users)
	p.mu.Unlock()

	slices.Sort(ids)
	return ids
}

func (p *Presence) Connections(userID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok := p.users[userID]; ok {
		return len(entry.conns)
	}
	return 0
}

func (p *Presence) emit(t Transition) {
	if p.onChange != nil {
		p.onChange(t)
	}
}
