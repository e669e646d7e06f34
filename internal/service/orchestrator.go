package service

import (
	"context"
	"errors"
	"time"

	"github.com/planwell/calendar-sync/internal/calendar"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/internal/repository"
	"go.uber.org/zap"
)

// lockRetryDelay is how long a task waits before retrying when another
// worker holds the lock for the same user or entity
const lockRetryDelay = 15 * time.Second

// SyncResult is the aggregate outcome of one full sync pass
type SyncResult struct {
	Synced int
	Failed int
}

// ReconcileResult is the outcome of one periodic reconciliation fan-out
type ReconcileResult struct {
	Enqueued int
	Errors   int
}

// Orchestrator drives the four sync operations. Every external failure is
// interpreted through the classification policy before any credential or
// mapping state is mutated.
type Orchestrator struct {
	creds      *CredentialService
	planning   repository.PlanningRepository
	mappings   repository.MappingRepository
	engine     Pusher
	cal        calendar.Client
	policy     *Policy
	locker     Locker
	enqueuer   Enqueuer
	notifier   Notifier
	metrics    *Metrics
	logger     *zap.Logger
	batchSize  int
	batchDelay time.Duration
}

// OrchestratorParams bundles the orchestrator's collaborators
type OrchestratorParams struct {
	Credentials *CredentialService
	Planning    repository.PlanningRepository
	Mappings    repository.MappingRepository
	Engine      Pusher
	Calendar    calendar.Client
	Policy      *Policy
	Locker      Locker
	Enqueuer    Enqueuer
	Notifier    Notifier
	Metrics     *Metrics
	Logger      *zap.Logger
	BatchSize   int
	BatchDelay  time.Duration
}

// NewOrchestrator creates a new sync orchestrator
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	if p.Notifier == nil {
		p.Notifier = NopNotifier{}
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 50
	}
	return &Orchestrator{
		creds:      p.Credentials,
		planning:   p.Planning,
		mappings:   p.Mappings,
		engine:     p.Engine,
		cal:        p.Calendar,
		policy:     p.Policy,
		locker:     p.Locker,
		enqueuer:   p.Enqueuer,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
		logger:     p.Logger,
		batchSize:  p.BatchSize,
		batchDelay: p.BatchDelay,
	}
}

// FullSync pushes every sync-eligible planning entity of the user to the
// external calendar, creating or refreshing mappings. Individual entity
// failures do not abort the pass; the aggregate is reported once.
func (o *Orchestrator) FullSync(ctx context.Context, userID string, attempt int) error {
	cred, ok, err := o.loadCredential(ctx, userID)
	if err != nil || !ok {
		return err
	}

	locked, err := o.locker.Acquire(ctx, UserKey(userID))
	if err != nil {
		return err
	}
	if !locked {
		return o.enqueuer.EnqueueFullSync(ctx, userID, attempt, lockRetryDelay)
	}
	defer o.releaseLock(ctx, UserKey(userID))

	accessToken, err := o.creds.AccessToken(cred)
	if err != nil {
		return err
	}

	items, err := o.planning.ListSyncEligible(ctx, userID)
	if err != nil {
		return err
	}

	result := &SyncResult{}
	for _, item := range items {
		pushErr := o.pushLocked(ctx, accessToken, userID, item)
		if pushErr == nil {
			result.Synced++
			continue
		}

		switch o.policy.Classify(pushErr, SiteSync) {
		case ActionIgnore:
			result.Synced++
		case ActionRetry:
			// Quota is exhausted for the whole pass, not one entity:
			// stop here and retry the full sync later
			o.reportSync(ctx, userID, result)
			return o.retryFullSync(ctx, userID, attempt, pushErr)
		case ActionDiscard:
			o.reportSync(ctx, userID, result)
			return o.failCredential(ctx, cred, pushErr)
		default:
			result.Failed++
			o.logger.Warn("entity push failed",
				zap.String("user_id", userID),
				zap.String("entity", item.Ref.String()),
				zap.Error(pushErr),
			)
		}
	}

	if err := o.creds.MarkSynced(ctx, userID); err != nil {
		return err
	}

	o.reportSync(ctx, userID, result)
	return nil
}

// EntitySync pushes a single named entity, triggered by a planning-domain
// change. With full set it behaves like FullSync. A vanished entity is a
// silent no-op: it may have been deleted between enqueue and execution.
func (o *Orchestrator) EntitySync(ctx context.Context, userID string, ref domain.EntityRef, full bool, attempt int) error {
	if full {
		return o.FullSync(ctx, userID, attempt)
	}

	cred, ok, err := o.loadCredential(ctx, userID)
	if err != nil || !ok {
		return err
	}

	item, err := o.planning.GetByRef(ctx, userID, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			o.logger.Debug("entity gone before sync, skipping",
				zap.String("user_id", userID),
				zap.String("entity", ref.String()),
			)
			return nil
		}
		return err
	}

	accessToken, err := o.creds.AccessToken(cred)
	if err != nil {
		return err
	}

	pushErr := o.pushLocked(ctx, accessToken, userID, item)
	if pushErr == nil {
		o.metrics.AddSynced(ctx, 1)
		return o.creds.MarkSynced(ctx, userID)
	}
	if errors.Is(pushErr, errLockBusy) {
		return o.enqueuer.EnqueueEntitySync(ctx, userID, ref, false, attempt, lockRetryDelay)
	}

	switch o.policy.Classify(pushErr, SiteSync) {
	case ActionIgnore:
		o.metrics.AddSynced(ctx, 1)
		return o.creds.MarkSynced(ctx, userID)
	case ActionRetry:
		return o.retryEntitySync(ctx, userID, ref, attempt, pushErr)
	case ActionDiscard:
		return o.failCredential(ctx, cred, pushErr)
	default:
		// Critical path: surface to the task queue's own failure handling
		o.metrics.AddFailed(ctx, 1)
		return pushErr
	}
}

// Reconcile fans one full-sync task out per reconcilable credential,
// staggered in batches so thousands of users do not hit the provider as one
// wave. A failed enqueue is counted and logged but never blocks the rest.
func (o *Orchestrator) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	creds, err := o.creds.ListReconcilable(ctx)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{}
	for i, cred := range creds {
		delay := time.Duration(i/o.batchSize) * o.batchDelay
		if err := o.enqueuer.EnqueueFullSync(ctx, cred.UserID, 0, delay); err != nil {
			result.Errors++
			o.logger.Error("failed to enqueue reconciliation sync",
				zap.String("user_id", cred.UserID),
				zap.Error(err),
			)
			continue
		}
		result.Enqueued++
	}

	// Diagnostics only: how much of the ledger is overdue
	stale, err := o.mappings.ListStale(ctx, time.Now().Add(-domain.StaleThreshold))
	if err != nil {
		o.logger.Warn("failed to count stale mappings", zap.Error(err))
	}

	o.logger.Info("reconciliation fan-out complete",
		zap.Int("enqueued", result.Enqueued),
		zap.Int("errors", result.Errors),
		zap.Int("stale_mappings", len(stale)),
	)

	return result, nil
}

// RemoveEvent best-effort deletes an external event after its planning entity
// was removed. "Not found" means already gone and is success; nothing on this
// path may fail the domain operation that triggered it.
func (o *Orchestrator) RemoveEvent(ctx context.Context, userID, eventID, calendarID string, attempt int) error {
	dropMapping := func() {
		if err := o.mappings.DeleteByEventID(ctx, userID, eventID); err != nil {
			o.logger.Warn("failed to drop mapping for removed event",
				zap.String("user_id", userID),
				zap.String("event_id", eventID),
				zap.Error(err),
			)
		}
	}

	cred, ok, err := o.loadCredential(ctx, userID)
	if err != nil || !ok {
		// No usable credential: the external event is unreachable anyway
		dropMapping()
		return nil
	}

	accessToken, err := o.creds.AccessToken(cred)
	if err != nil {
		dropMapping()
		return nil
	}

	delErr := o.cal.DeleteEvent(ctx, accessToken, calendarID, eventID)
	if delErr == nil {
		dropMapping()
		return nil
	}

	switch o.policy.Classify(delErr, SiteDelete) {
	case ActionIgnore:
		dropMapping()
		return nil
	case ActionRetry:
		if attempt+1 >= o.policy.MaxAttempts(SiteDelete) {
			o.logger.Error("event removal abandoned after retries",
				zap.String("user_id", userID),
				zap.String("event_id", eventID),
				zap.Int("attempts", attempt+1),
				zap.Error(delErr),
			)
			return nil
		}
		o.metrics.RetryScheduled(ctx, "delete")
		return o.enqueuer.EnqueueRemoveEvent(ctx, userID, eventID, calendarID, attempt+1, o.policy.Backoff(attempt))
	case ActionDiscard:
		// Auth failure still marks the credential, but deletion never fails
		// the surrounding domain operation
		_ = o.failCredential(ctx, cred, delErr)
		return nil
	default:
		o.logger.Warn("event removal failed, giving up",
			zap.String("user_id", userID),
			zap.String("event_id", eventID),
			zap.Error(delErr),
		)
		return nil
	}
}

var errLockBusy = errors.New("sync lock busy")

// pushLocked takes the per-entity lock around one push so a targeted sync
// and a concurrent full sync cannot race on the same mapping row
func (o *Orchestrator) pushLocked(ctx context.Context, accessToken, userID string, item *domain.PlanItem) error {
	key := EntityKey(userID, item.Ref)

	locked, err := o.locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	if !locked {
		return errLockBusy
	}
	defer o.releaseLock(ctx, key)

	return o.engine.Push(ctx, accessToken, userID, item)
}

// loadCredential resolves the user's credential for a sync attempt. ok=false
// with a nil error means there is legitimately nothing to do.
func (o *Orchestrator) loadCredential(ctx context.Context, userID string) (*domain.Credential, bool, error) {
	cred, err := o.creds.GetForSync(ctx, userID)
	if err == nil {
		return cred, true, nil
	}

	if errors.Is(err, repository.ErrNotFound) {
		o.logger.Debug("no calendar credential, skipping sync", zap.String("user_id", userID))
		return nil, false, nil
	}
	if errors.Is(err, ErrSyncPaused) {
		o.logger.Debug("calendar sync paused, skipping", zap.String("user_id", userID))
		return nil, false, nil
	}

	// Refresh failures carry the client's typed classification
	if calendar.KindOf(err) == calendar.FailureAuth {
		return nil, false, o.markCredentialError(ctx, userID, err)
	}

	return nil, false, err
}

// failCredential applies the discard action: mark the credential unhealthy
// and notify the user exactly once
func (o *Orchestrator) failCredential(ctx context.Context, cred *domain.Credential, cause error) error {
	return o.markCredentialError(ctx, cred.UserID, cause)
}

func (o *Orchestrator) markCredentialError(ctx context.Context, userID string, cause error) error {
	transitioned, err := o.creds.MarkError(ctx, userID, cause.Error())
	if err != nil {
		return err
	}

	o.logger.Error("credential marked unhealthy",
		zap.String("user_id", userID),
		zap.Error(cause),
	)
	o.metrics.CredentialError(ctx)

	if transitioned {
		cred, err := o.creds.Status(ctx, userID)
		if err == nil {
			if nerr := o.notifier.CredentialError(ctx, cred, cause.Error()); nerr != nil {
				o.logger.Warn("failed to notify credential error",
					zap.String("user_id", userID),
					zap.Error(nerr),
				)
			}
		}
	}

	return nil
}

func (o *Orchestrator) retryFullSync(ctx context.Context, userID string, attempt int, cause error) error {
	if attempt+1 >= o.policy.MaxAttempts(SiteSync) {
		o.logger.Error("full sync abandoned after retries",
			zap.String("user_id", userID),
			zap.Int("attempts", attempt+1),
			zap.Error(cause),
		)
		return nil
	}

	o.metrics.RetryScheduled(ctx, "sync")
	return o.enqueuer.EnqueueFullSync(ctx, userID, attempt+1, o.policy.Backoff(attempt))
}

func (o *Orchestrator) retryEntitySync(ctx context.Context, userID string, ref domain.EntityRef, attempt int, cause error) error {
	if attempt+1 >= o.policy.MaxAttempts(SiteSync) {
		o.logger.Error("entity sync abandoned after retries",
			zap.String("user_id", userID),
			zap.String("entity", ref.String()),
			zap.Int("attempts", attempt+1),
			zap.Error(cause),
		)
		return nil
	}

	o.metrics.RetryScheduled(ctx, "sync")
	return o.enqueuer.EnqueueEntitySync(ctx, userID, ref, false, attempt+1, o.policy.Backoff(attempt))
}

func (o *Orchestrator) reportSync(ctx context.Context, userID string, result *SyncResult) {
	o.metrics.AddSynced(ctx, result.Synced)
	o.metrics.AddFailed(ctx, result.Failed)
	o.logger.Info("sync pass finished",
		zap.String("user_id", userID),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed),
	)
}

func (o *Orchestrator) releaseLock(ctx context.Context, key string) {
	if err := o.locker.Release(ctx, key); err != nil {
		o.logger.Warn("failed to release sync lock", zap.String("key", key), zap.Error(err))
	}
}
