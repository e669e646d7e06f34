package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/internal/service"
	"go.uber.org/zap"
)

// Handlers decodes queue payloads and dispatches to the orchestrator
type Handlers struct {
	orch   *service.Orchestrator
	creds  *service.CredentialService
	logger *zap.Logger
}

// NewHandlers creates the task handler set
func NewHandlers(orch *service.Orchestrator, creds *service.CredentialService, logger *zap.Logger) *Handlers {
	return &Handlers{orch: orch, creds: creds, logger: logger}
}

// NewServeMux registers every task type on an asynq mux
func NewServeMux(h *Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeFullSync, h.HandleFullSync)
	mux.HandleFunc(TypeEntitySync, h.HandleEntitySync)
	mux.HandleFunc(TypeRemoveEvent, h.HandleRemoveEvent)
	mux.HandleFunc(TypeReconcile, h.HandleReconcile)
	mux.HandleFunc(TypeRefresh, h.HandleRefresh)
	return mux
}

// HandleFullSync runs a full sync pass for one user
func (h *Handlers) HandleFullSync(ctx context.Context, t *asynq.Task) error {
	var p FullSyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid full sync payload: %v: %w", err, asynq.SkipRetry)
	}
	return h.orch.FullSync(ctx, p.UserID, p.Attempt)
}

// HandleEntitySync runs a targeted sync for one entity
func (h *Handlers) HandleEntitySync(ctx context.Context, t *asynq.Task) error {
	var p EntitySyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid entity sync payload: %v: %w", err, asynq.SkipRetry)
	}

	if p.Full {
		return h.orch.FullSync(ctx, p.UserID, p.Attempt)
	}

	// Reject unknown kinds at the boundary instead of dispatching on them
	ref, err := domain.NewEntityRef(p.EntityKind, p.EntityID)
	if err != nil {
		return fmt.Errorf("invalid entity reference: %v: %w", err, asynq.SkipRetry)
	}

	return h.orch.EntitySync(ctx, p.UserID, ref, false, p.Attempt)
}

// HandleRemoveEvent best-effort removes one external event
func (h *Handlers) HandleRemoveEvent(ctx context.Context, t *asynq.Task) error {
	var p RemoveEventPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("invalid remove event payload: %v: %w", err, asynq.SkipRetry)
	}
	return h.orch.RemoveEvent(ctx, p.UserID, p.EventID, p.CalendarID, p.Attempt)
}

// HandleReconcile runs the periodic fan-out. Enqueue-only: it never performs
// calendar I/O itself.
func (h *Handlers) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	_, err := h.orch.Reconcile(ctx)
	return err
}

// HandleRefresh proactively refreshes tokens expiring within the window
func (h *Handlers) HandleRefresh(ctx context.Context, t *asynq.Task) error {
	refreshed, err := h.creds.RefreshExpiring(ctx)
	if err != nil {
		return err
	}
	if refreshed > 0 {
		h.logger.Info("proactive token refresh complete", zap.Int("refreshed", refreshed))
	}
	return nil
}
