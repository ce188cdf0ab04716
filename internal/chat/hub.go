package chat

import (
	"context"
	"log/slog"
	"time"
)

const (
	mirrorQueueSize = 1024
	mirrorTimeout   = 5 * time.Second
	refreshPeriod   = 60 * time.Second
)

// PresenceMirror publishes presence to an external store. It is optional.
type PresenceMirror interface {
	MarkOnline(ctx context.Context, userID int64) error
	MarkOffline(ctx context.Context, userID int64) error
	// Refresh replaces the mirrored online set with userIDs.
	Refresh(ctx context.Context, userIDs []int64) error
	Reset(ctx context.Context) error
}

// Hub is the process-wide chat state: live subscriptions and presence. It is
// created at server start and torn down with Shutdown.
type Hub struct {
	Router   *Router
	Presence *Presence

	mirror       PresenceMirror
	refreshEvery time.Duration
	changes      chan Transition
	done    chan struct{}
	log     *slog.Logger
}

func NewHub(log *slog.Logger, mirror PresenceMirror) *Hub {
	h := &Hub{
		Router:  NewRouter(log),
		mirror:       mirror,
		refreshEvery: refreshPeriod,
		changes:      make(chan Transition, mirrorQueueSize),
		done:         make(chan struct{}),
		log:          log,
	}
	h.Presence = NewPresence(h.onPresenceChange)
	return h
}

// onPresenceChange runs under the presence lock; see Presence.
func (h *Hub) onPresenceChange(t Transition) {
	h.Router.PublishGlobal(TypeUserStatusChange, UserStatusPayload{
		UserID:   t.UserID,
		Username: t.Username,
		IsOnline: t.Online,
	})
	if t.Online {
		h.log.Info("user online", "user_id", t.UserID, "username", t.Username)
	} else {
		h.log.Info("user offline", "user_id", t.UserID, "username", t.Username)
	}

	if h.mirror == nil {
		return
	}
	select {
	case h.changes <- t:
	default:
		h.log.Warn("presence mirror queue full, transition dropped", "user_id", t.UserID)
	}
}

// Run applies presence transitions to the mirror in order until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.mirror == nil {
		<-ctx.Done()
		return
	}

	if err := h.withTimeout(ctx, h.mirror.Reset); err != nil {
		h.log.Error("failed to reset presence mirror", "error", err)
	}

	ticker := time.NewTicker(h.refreshEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-h.changes:
			var err error
			if t.Online {
				err = h.withTimeout(ctx, func(ctx context.Context) error { return h.mirror.MarkOnline(ctx, t.UserID) })
			} else {
				err = h.withTimeout(ctx, func(ctx context.Context) error { return h.mirror.MarkOffline(ctx, t.UserID) })
			}
			if err != nil {
				h.log.Error("failed to mirror presence", "user_id", t.UserID, "online", t.Online, "error", err)
			}
		case <-ticker.C:
			// rewrites the whole set, covering transitions dropped from a full queue
			ids := h.Presence.ListOnline()
			if err := h.withTimeout(ctx, func(ctx context.Context) error { return h.mirror.Refresh(ctx, ids) }); err != nil {
				h.log.Error("failed to refresh presence mirror", "error", err)
			}
		}
	}
}

func (h *Hub) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
	defer cancel()
	return fn(ctx)
}

// SendToUser delivers to every connection of the user through their personal room.
func (h *Hub) SendToUser(userID int64, event string, payload any) int {
	return h.Router.Publish(UserKey(userID), event, payload, "")
}

func (h *Hub) IsOnline(userID int64) bool {
	return h.Presence.IsOnline(userID)
}

func (h *Hub) ListOnline() []int64 {
	return h.Presence.ListOnline()
}

// Shutdown closes every connection. Call it after the context passed to Run
// is cancelled; it waits for Run to return.
func (h *Hub) Shutdown() {
	h.Router.CloseAll()
	<-h.done
}
