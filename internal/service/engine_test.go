package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/planwell/calendar-sync/internal/calendar"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopReserver struct{}

func (nopReserver) Reserve(ctx context.Context, userID string) error { return nil }

type rejectingReserver struct{}

func (rejectingReserver) Reserve(ctx context.Context, userID string) error {
	return quotaErr()
}

func newEngineFixture() (*SyncEngine, *memMappingRepo, *fakeCalendar) {
	mappings := newMemMappingRepo()
	cal := &fakeCalendar{}
	engine := NewSyncEngine(mappings, cal, nopReserver{}, zap.NewNop())
	return engine, mappings, cal
}

func planItem() *domain.PlanItem {
	return &domain.PlanItem{
		Ref:      domain.EntityRef{Kind: domain.KindGoal, ID: uuid.New().String()},
		Title:    "Quarterly planning",
		StartsAt: time.Now().Add(time.Hour),
		EndsAt:   time.Now().Add(2 * time.Hour),
	}
}

func TestPushCreatesEventAndMapping(t *testing.T) {
	engine, mappings, cal := newEngineFixture()
	userID := uuid.New().String()
	item := planItem()

	err := engine.Push(context.Background(), "tok", userID, item)
	require.NoError(t, err)

	assert.Equal(t, 1, cal.created)

	m, err := mappings.GetByEntity(context.Background(), userID, item.Ref)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", m.EventID)
	assert.Equal(t, calendar.DefaultCalendarID, m.CalendarID)
	assert.False(t, m.LastSyncedAt.IsZero())
}

func TestPushUpdatesExistingEvent(t *testing.T) {
	engine, mappings, cal := newEngineFixture()
	userID := uuid.New().String()
	item := planItem()

	staleTime := time.Now().Add(-time.Hour)
	require.NoError(t, mappings.Upsert(context.Background(), &domain.SyncMapping{
		ID:           uuid.New().String(),
		UserID:       userID,
		EntityKind:   item.Ref.Kind,
		EntityID:     item.Ref.ID,
		EventID:      "evt-existing",
		CalendarID:   "primary",
		LastSyncedAt: staleTime,
	}))

	err := engine.Push(context.Background(), "tok", userID, item)
	require.NoError(t, err)

	assert.Equal(t, 1, cal.updated)
	assert.Zero(t, cal.created, "existing mapping must not create a second event")

	m, err := mappings.GetByEntity(context.Background(), userID, item.Ref)
	require.NoError(t, err)
	assert.Equal(t, "evt-existing", m.EventID)
	assert.True(t, m.LastSyncedAt.After(staleTime), "resync refreshes last_synced_at")
}

func TestPushRecreatesVanishedEvent(t *testing.T) {
	engine, mappings, cal := newEngineFixture()
	userID := uuid.New().String()
	item := planItem()

	require.NoError(t, mappings.Upsert(context.Background(), &domain.SyncMapping{
		ID:           uuid.New().String(),
		UserID:       userID,
		EntityKind:   item.Ref.Kind,
		EntityID:     item.Ref.ID,
		EventID:      "evt-vanished",
		CalendarID:   "work",
		LastSyncedAt: time.Now().Add(-time.Hour),
	}))
	cal.updateErr = notFoundErr()

	err := engine.Push(context.Background(), "tok", userID, item)
	require.NoError(t, err)

	assert.Equal(t, 1, cal.created, "vanished event is recreated")

	m, err := mappings.GetByEntity(context.Background(), userID, item.Ref)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", m.EventID, "mapping is repointed at the new event")
	assert.Equal(t, "work", m.CalendarID, "recreation keeps the original calendar")
}

func TestPushThrottled(t *testing.T) {
	mappings := newMemMappingRepo()
	cal := &fakeCalendar{}
	engine := NewSyncEngine(mappings, cal, rejectingReserver{}, zap.NewNop())

	err := engine.Push(context.Background(), "tok", uuid.New().String(), planItem())
	require.Error(t, err)
	assert.Equal(t, calendar.FailureQuota, calendar.KindOf(err))
	assert.Zero(t, cal.created, "throttled push never reaches the provider")
	assert.Empty(t, mappings.mappings)
}

func TestPushDefaultsEventDuration(t *testing.T) {
	engine, _, cal := newEngineFixture()
	item := planItem()
	item.EndsAt = time.Time{}

	err := engine.Push(context.Background(), "tok", uuid.New().String(), item)
	require.NoError(t, err)

	require.NotNil(t, cal.lastEvent)
	assert.Equal(t, item.StartsAt.Add(time.Hour), cal.lastEvent.EndsAt, "missing end time defaults to one hour")
}

func TestPushCreateFailurePersistsNothing(t *testing.T) {
	engine, mappings, cal := newEngineFixture()
	cal.createErr = quotaErr()

	err := engine.Push(context.Background(), "tok", uuid.New().String(), planItem())
	require.Error(t, err)
	assert.Empty(t, mappings.mappings, "no mapping may exist without its event")
}
