package redisc

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const (
	onlineUsersKey = "online_users"
	presencePrefix = "presence:"
	presenceTTL    = 120 * time.Second
)

// PresenceMirror copies the in-process online set into Redis for readers
// outside the server. It is never consulted for delivery decisions.
type PresenceMirror struct {
	client *redis.Client
}

func NewPresenceMirror(client *redis.Client) *PresenceMirror {
	return &PresenceMirror{client: client}
}

func presenceKey(userID int64) string {
	return presencePrefix + strconv.FormatInt(userID, 10)
}

func (m *PresenceMirror) MarkOnline(ctx context.Context, userID int64) error {
	pipe := m.client.Pipeline()
	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.Set(ctx, presenceKey(userID), "online", presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *PresenceMirror) MarkOffline(ctx context.Context, userID int64) error {
	pipe := m.client.Pipeline()
	pipe.SRem(ctx, onlineUsersKey, userID)
	pipe.Del(ctx, presenceKey(userID))
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh replaces the online set with userIDs and extends their presence keys.
func (m *PresenceMirror) Refresh(ctx context.Context, userIDs []int64) error {
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, onlineUsersKey)
	if len(userIDs) > 0 {
		pipe.SAdd(ctx, onlineUsersKey, lo.Map(userIDs, func(id int64, _ int) any { return id })...)
	}
	for _, id := range userIDs {
		pipe.Set(ctx, presenceKey(id), "online", presenceTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Reset drops the online set left behind by a previous process.
func (m *PresenceMirror) Reset(ctx context.Context) error {
	return m.client.Del(ctx, onlineUsersKey).Err()
}
