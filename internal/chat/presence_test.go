package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type transitionLog struct {
	mu  sync.Mutex
	all []Transition
}

func (l *transitionLog) record(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, t)
}

func (l *transitionLog) list() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transition(nil), l.all...)
}

func TestPresence_SingleConnection(t *testing.T) {
	req := require.New(t)
	var log transitionLog
	p := NewPresence(log.record)
	alice := Identity{UserID: 1, Username: "alice"}

	req.True(p.SetOnline(alice, "c1"))
	req.True(p.IsOnline(1))
	req.Equal([]int64{1}, p.ListOnline())

	req.True(p.SetOffline(1, "c1"))
	req.False(p.IsOnline(1))
	req.Empty(p.ListOnline())

	req.Equal([]Transition{
		{UserID: 1, Username: "alice", Online: true},
		{UserID: 1, Username: "alice", Online: false},
	}, log.list())
}

func TestPresence_ReferenceCountedConnections(t *testing.T) {
	req := require.New(t)
	var log transitionLog
	p := NewPresence(log.record)
	alice := Identity{UserID: 1, Username: "alice"}

	req.True(p.SetOnline(alice, "tab1"))
	req.False(p.SetOnline(alice, "tab2"))
	req.Equal(2, p.Connections(1))

	req.False(p.SetOffline(1, "tab1"))
	req.True(p.IsOnline(1))

	req.True(p.SetOffline(1, "tab2"))
	req.False(p.IsOnline(1))
	req.Len(log.list(), 2)
}

func TestPresence_Idempotent(t *testing.T) {
	req := require.New(t)
	var log transitionLog
	p := NewPresence(log.record)
	alice := Identity{UserID: 1, Username: "alice"}

	req.True(p.SetOnline(alice, "c1"))
	req.False(p.SetOnline(alice, "c1"))
	req.Equal(1, p.Connections(1))

	req.False(p.SetOffline(2, "c9"))
	req.False(p.SetOffline(1, "unknown"))
	req.True(p.SetOffline(1, "c1"))
	req.False(p.SetOffline(1, "c1"))

	req.Len(log.list(), 2)
}

func TestPresence_ListOnlineSorted(t *testing.T) {
	p := NewPresence(nil)
	for _, id := range []int64{5, 2, 9, 1} {
		p.SetOnline(Identity{UserID: id, Username: fmt.Sprint(id)}, ConnID(fmt.Sprint("c", id)))
	}
	require.Equal(t, []int64{1, 2, 5, 9}, p.ListOnline())
}

func TestPresence_ConcurrentConnectsEmitOnce(t *testing.T) {
	req := require.New(t)
	var log transitionLog
	p := NewPresence(log.record)
	alice := Identity{UserID: 1, Username: "alice"}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.SetOnline(alice, ConnID(fmt.Sprint("c", i)))
		}(i)
	}
	wg.Wait()

	req.Equal(n, p.Connections(1))
	req.Equal([]Transition{{UserID: 1, Username: "alice", Online: true}}, log.list())

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.SetOffline(1, ConnID(fmt.Sprint("c", i)))
		}(i)
	}
	wg.Wait()

	req.False(p.IsOnline(1))
	req.Len(log.list(), 2)
	req.False(log.list()[1].Online)
}
