package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/planwell/calendar-sync/internal/domain"
)

// Task type names, one per orchestrator operation
const (
	TypeFullSync    = "calendar:full_sync"
	TypeEntitySync  = "calendar:entity_sync"
	TypeRemoveEvent = "calendar:remove_event"
	TypeReconcile   = "calendar:reconcile"
	TypeRefresh     = "calendar:refresh_tokens"
)

// Queue names. Queue selection is explicit per task type; sync work must not
// starve behind maintenance fan-out or vice versa.
const (
	QueueSync        = "sync"
	QueueMaintenance = "maintenance"
)

// FullSyncPayload triggers a full sync pass for one user. Attempt counts
// policy-managed quota retries, not queue-level retries.
type FullSyncPayload struct {
	UserID  string `json:"user_id"`
	Attempt int    `json:"attempt"`
}

// EntitySyncPayload triggers a targeted (or full) sync for one entity
type EntitySyncPayload struct {
	UserID     string            `json:"user_id"`
	EntityKind domain.EntityKind `json:"entity_kind,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Full       bool              `json:"full"`
	Attempt    int               `json:"attempt"`
}

// RemoveEventPayload triggers best-effort removal of an external event
type RemoveEventPayload struct {
	UserID     string `json:"user_id"`
	EventID    string `json:"external_event_id"`
	CalendarID string `json:"external_calendar_id"`
	Attempt    int    `json:"attempt"`
}

// NewFullSyncTask builds a full-sync task
func NewFullSyncTask(userID string, attempt int) (*asynq.Task, error) {
	payload, err := json.Marshal(FullSyncPayload{UserID: userID, Attempt: attempt})
	if err != nil {
		return nil, fmt.Errorf("failed to encode full sync payload: %w", err)
	}
	return asynq.NewTask(TypeFullSync, payload), nil
}

// NewEntitySyncTask builds a targeted-sync task
func NewEntitySyncTask(userID string, ref domain.EntityRef, full bool, attempt int) (*asynq.Task, error) {
	payload, err := json.Marshal(EntitySyncPayload{
		UserID:     userID,
		EntityKind: ref.Kind,
		EntityID:   ref.ID,
		Full:       full,
		Attempt:    attempt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity sync payload: %w", err)
	}
	return asynq.NewTask(TypeEntitySync, payload), nil
}

// NewRemoveEventTask builds an event-removal task
func NewRemoveEventTask(userID, eventID, calendarID string, attempt int) (*asynq.Task, error) {
	payload, err := json.Marshal(RemoveEventPayload{
		UserID:     userID,
		EventID:    eventID,
		CalendarID: calendarID,
		Attempt:    attempt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode remove event payload: %w", err)
	}
	return asynq.NewTask(TypeRemoveEvent, payload), nil
}

// NewReconcileTask builds the periodic reconciliation trigger (no payload)
func NewReconcileTask() *asynq.Task {
	return asynq.NewTask(TypeReconcile, nil)
}

// NewRefreshTask builds the periodic token refresh trigger (no payload)
func NewRefreshTask() *asynq.Task {
	return asynq.NewTask(TypeRefresh, nil)
}
