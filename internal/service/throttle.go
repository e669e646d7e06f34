package service

import (
	"context"
	"fmt"
	"time"

	"github.com/planwell/calendar-sync/internal/calendar"
	"github.com/planwell/calendar-sync/pkg/database"
	"github.com/redis/go-redis/v9"
)

// Throttle bounds outbound calendar API calls per user so a large sync pass
// does not burn through the provider quota. A locally rejected call is
// classified exactly like a provider quota response, so the backoff policy
// applies without a wasted API round trip.
type Throttle struct {
	redis  *database.Redis
	limit  int
	window time.Duration
}

// NewThrottle creates a new outbound call throttle
func NewThrottle(redis *database.Redis, limit int, window time.Duration) *Throttle {
	return &Throttle{redis: redis, limit: limit, window: window}
}

// Reserve records one outbound call for the user. Returns a quota-classified
// APIError when the sliding window is full.
func (t *Throttle) Reserve(ctx context.Context, userID string) error {
	now := time.Now()
	windowStart := now.Add(-t.window)

	// Sliding window log over a sorted set, scored by unix time
	key := fmt.Sprintf("calquota:%s", userID)

	err := t.redis.Client.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.Unix())).Err()
	if err != nil {
		return fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := t.redis.Client.ZCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}

	if count >= int64(t.limit) {
		return &calendar.APIError{
			Kind:    calendar.FailureQuota,
			Message: fmt.Sprintf("outbound call budget of %d per %v reached", t.limit, t.window),
		}
	}

	member := fmt.Sprintf("%d", now.UnixNano())
	err = t.redis.Client.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.Unix()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add entry: %w", err)
	}

	if err := t.redis.Client.Expire(ctx, key, t.window+time.Minute).Err(); err != nil {
		// Stale keys only waste memory until the next Reserve cleans them
		_ = err
	}

	return nil
}
