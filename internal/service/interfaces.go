package service

import (
	"context"
	"time"

	"github.com/planwell/calendar-sync/internal/domain"
)

// Enqueuer defers work to the background task queue. Queue and priority are
// resolved by the task-queue layer per operation; delay and attempt are
// explicit because the orchestrator owns the backoff policy.
type Enqueuer interface {
	EnqueueFullSync(ctx context.Context, userID string, attempt int, delay time.Duration) error
	EnqueueEntitySync(ctx context.Context, userID string, ref domain.EntityRef, full bool, attempt int, delay time.Duration) error
	EnqueueRemoveEvent(ctx context.Context, userID, eventID, calendarID string, attempt int, delay time.Duration) error
}

// Notifier reports terminal credential errors to the user through the
// platform's notification channel
type Notifier interface {
	CredentialError(ctx context.Context, cred *domain.Credential, message string) error
}

// NopNotifier discards notifications
type NopNotifier struct{}

func (NopNotifier) CredentialError(ctx context.Context, cred *domain.Credential, message string) error {
	return nil
}

// Locker serializes sync work on a key
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Pusher syncs one planning entity to the external calendar
type Pusher interface {
	Push(ctx context.Context, accessToken, userID string, item *domain.PlanItem) error
}

// Reserver accounts one outbound provider call against the user's budget
type Reserver interface {
	Reserve(ctx context.Context, userID string) error
}
