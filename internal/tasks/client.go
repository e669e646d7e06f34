package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/planwell/calendar-sync/internal/domain"
)

// Client enqueues sync work on the Redis-backed task queue. It implements
// service.Enqueuer. Retry/backoff decisions live in the orchestrator's
// policy, so tasks are enqueued with queue-level retries disabled except on
// the critical sync path, where unclassified failures fall through to the
// queue's own retry machinery.
type Client struct {
	inner *asynq.Client
}

// NewClient creates a task queue client
func NewClient(redisOpt asynq.RedisClientOpt) *Client {
	return &Client{inner: asynq.NewClient(redisOpt)}
}

// EnqueueFullSync schedules a full sync pass for the user after delay
func (c *Client) EnqueueFullSync(ctx context.Context, userID string, attempt int, delay time.Duration) error {
	task, err := NewFullSyncTask(userID, attempt)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, QueueSync, delay)
}

// EnqueueEntitySync schedules a targeted sync for one entity after delay
func (c *Client) EnqueueEntitySync(ctx context.Context, userID string, ref domain.EntityRef, full bool, attempt int, delay time.Duration) error {
	task, err := NewEntitySyncTask(userID, ref, full, attempt)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, QueueSync, delay)
}

// EnqueueRemoveEvent schedules best-effort removal of an external event
func (c *Client) EnqueueRemoveEvent(ctx context.Context, userID, eventID, calendarID string, attempt int, delay time.Duration) error {
	task, err := NewRemoveEventTask(userID, eventID, calendarID, attempt)
	if err != nil {
		return err
	}
	return c.enqueue(ctx, task, QueueMaintenance, delay)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task, queue string, delay time.Duration) error {
	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(3),
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	if _, err := c.inner.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	return nil
}

// Close closes the underlying queue connection
func (c *Client) Close() error {
	return c.inner.Close()
}
