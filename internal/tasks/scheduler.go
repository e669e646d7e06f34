package tasks

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// NewScheduler registers the periodic triggers: reconciliation fan-out and
// proactive token refresh. Both are enqueue-only and run on the maintenance
// queue so they never compete with sync work.
func NewScheduler(redisOpt asynq.RedisClientOpt, reconcileEvery time.Duration) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, nil)

	_, err := scheduler.Register(
		fmt.Sprintf("@every %s", reconcileEvery),
		NewReconcileTask(),
		asynq.Queue(QueueMaintenance),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register reconcile schedule: %w", err)
	}

	// Refresh runs on a fraction of the expiry window so no token slips
	// through between runs
	_, err = scheduler.Register(
		"@every 2m",
		NewRefreshTask(),
		asynq.Queue(QueueMaintenance),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register refresh schedule: %w", err)
	}

	return scheduler, nil
}
