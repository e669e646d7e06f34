package service

import (
	"context"
	"fmt"
	"time"

	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/pkg/database"
)

// SyncLocker serializes concurrent sync attempts through Redis. Writes to the
// same (user, entity) mapping must never run in parallel: two workers racing
// would either create duplicate events or leave the ledger with a stale event
// id after a lost update.
type SyncLocker struct {
	redis *database.Redis
	ttl   time.Duration
}

// NewSyncLocker creates a new sync locker
func NewSyncLocker(redis *database.Redis, ttl time.Duration) *SyncLocker {
	return &SyncLocker{redis: redis, ttl: ttl}
}

// UserKey is the lock key covering a user's full sync pass
func UserKey(userID string) string {
	return fmt.Sprintf("synclock:%s", userID)
}

// EntityKey is the lock key covering one (user, entity) mapping
func EntityKey(userID string, ref domain.EntityRef) string {
	return fmt.Sprintf("synclock:%s:%s:%s", userID, ref.Kind, ref.ID)
}

// Acquire takes the lock. Returns false without blocking when another worker
// holds it; the caller re-enqueues with a short delay instead of waiting.
func (l *SyncLocker) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.redis.Client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release frees the lock. The TTL covers crashed workers.
func (l *SyncLocker) Release(ctx context.Context, key string) error {
	if err := l.redis.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}
