package repository

import (
	"context"
	"time"

	"github.com/planwell/calendar-sync/internal/domain"
)

// CredentialRepository defines persistence for calendar credentials
type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.Credential) error
	GetByUserID(ctx context.Context, userID string) (*domain.Credential, error)
	UpdateTokens(ctx context.Context, cred *domain.Credential) error
	UpdateStatus(ctx context.Context, userID string, status domain.SyncStatus) error
	SetError(ctx context.Context, userID, message string) error
	SetSynced(ctx context.Context, userID string, at time.Time) error
	ListActive(ctx context.Context) ([]*domain.Credential, error)
	ListNeedingRefresh(ctx context.Context, deadline time.Time) ([]*domain.Credential, error)
	Delete(ctx context.Context, userID string) error
}

// MappingRepository defines persistence for the sync mapping ledger
type MappingRepository interface {
	Upsert(ctx context.Context, m *domain.SyncMapping) error
	GetByEntity(ctx context.Context, userID string, ref domain.EntityRef) (*domain.SyncMapping, error)
	TouchSynced(ctx context.Context, id string, at time.Time) error
	ListStale(ctx context.Context, olderThan time.Time) ([]*domain.SyncMapping, error)
	DeleteByEntity(ctx context.Context, userID string, ref domain.EntityRef) error
	DeleteByEventID(ctx context.Context, userID, eventID string) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// PlanningRepository reads goal and review records owned by the planning
// service. This service never writes to those tables.
type PlanningRepository interface {
	ListSyncEligible(ctx context.Context, userID string) ([]*domain.PlanItem, error)
	GetByRef(ctx context.Context, userID string, ref domain.EntityRef) (*domain.PlanItem, error)
}
