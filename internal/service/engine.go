package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/planwell/calendar-sync/internal/calendar"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/internal/repository"
	"go.uber.org/zap"
)

// SyncEngine pushes one planning entity to the external calendar and keeps
// the mapping ledger consistent with the result. Create-or-update semantics:
// an existing mapping drives an update, a missing one a create, and an update
// against a vanished event recreates it and repoints the mapping.
type SyncEngine struct {
	mappings repository.MappingRepository
	cal      calendar.Client
	throttle Reserver
	logger   *zap.Logger
}

// NewSyncEngine creates a new sync engine
func NewSyncEngine(
	mappings repository.MappingRepository,
	cal calendar.Client,
	throttle Reserver,
	logger *zap.Logger,
) *SyncEngine {
	return &SyncEngine{
		mappings: mappings,
		cal:      cal,
		throttle: throttle,
		logger:   logger,
	}
}

// Push syncs a single plan item. The caller holds the per-entity lock.
func (e *SyncEngine) Push(ctx context.Context, accessToken, userID string, item *domain.PlanItem) error {
	if err := e.throttle.Reserve(ctx, userID); err != nil {
		return err
	}

	ev := toEvent(item)

	mapping, err := e.mappings.GetByEntity(ctx, userID, item.Ref)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return e.create(ctx, accessToken, userID, item, ev, calendar.DefaultCalendarID)
	}

	err = e.cal.UpdateEvent(ctx, accessToken, mapping.CalendarID, mapping.EventID, ev)
	if calendar.IsNotFound(err) {
		// The event was deleted externally; recreate it and repoint the mapping
		e.logger.Debug("external event vanished, recreating",
			zap.String("user_id", userID),
			zap.String("entity", item.Ref.String()),
		)
		return e.create(ctx, accessToken, userID, item, ev, mapping.CalendarID)
	}
	if err != nil {
		return err
	}

	if err := e.mappings.TouchSynced(ctx, mapping.ID, time.Now()); err != nil {
		return fmt.Errorf("event updated but mapping not refreshed: %w", err)
	}

	return nil
}

func (e *SyncEngine) create(ctx context.Context, accessToken, userID string, item *domain.PlanItem, ev *calendar.Event, calendarID string) error {
	eventID, err := e.cal.CreateEvent(ctx, accessToken, calendarID, ev)
	if err != nil {
		return err
	}

	mapping := &domain.SyncMapping{
		UserID:       userID,
		EntityKind:   item.Ref.Kind,
		EntityID:     item.Ref.ID,
		EventID:      eventID,
		CalendarID:   calendarID,
		LastSyncedAt: time.Now(),
	}

	if err := e.mappings.Upsert(ctx, mapping); err != nil {
		return fmt.Errorf("event %s created but mapping not persisted: %w", eventID, err)
	}

	return nil
}

func toEvent(item *domain.PlanItem) *calendar.Event {
	ends := item.EndsAt
	if ends.IsZero() || !ends.After(item.StartsAt) {
		ends = item.StartsAt.Add(time.Hour)
	}

	return &calendar.Event{
		Title:       item.Title,
		Description: item.Description,
		StartsAt:    item.StartsAt,
		EndsAt:      ends,
	}
}
