package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/pkg/database"
)

// mappingRepository implements MappingRepository interface
type mappingRepository struct {
	db *database.Postgres
}

// NewMappingRepository creates a new sync mapping repository
func NewMappingRepository(db *database.Postgres) MappingRepository {
	return &mappingRepository{db: db}
}

// Upsert creates the mapping, or refreshes event id, calendar id and
// last_synced_at when a row for (user, entity kind, entity id) already
// exists. Re-sync of the same entity never produces a second row.
func (r *mappingRepository) Upsert(ctx context.Context, m *domain.SyncMapping) error {
	query := `
		INSERT INTO sync_mappings
			(id, user_id, entity_kind, entity_id, event_id, calendar_id, last_synced_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, entity_kind, entity_id) DO UPDATE SET
			event_id = EXCLUDED.event_id,
			calendar_id = EXCLUDED.calendar_id,
			last_synced_at = EXCLUDED.last_synced_at
	`

	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.LastSyncedAt.IsZero() {
		m.LastSyncedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		m.ID,
		m.UserID,
		m.EntityKind,
		m.EntityID,
		m.EventID,
		m.CalendarID,
		m.LastSyncedAt,
		m.CreatedAt,
	)

	if err != nil {
		// The (user_id, event_id) unique index still fires through the upsert
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("event %s for user %s: %w", m.EventID, m.UserID, ErrDuplicateEvent)
			}
		}
		return fmt.Errorf("failed to upsert mapping: %w", err)
	}

	return nil
}

// GetByEntity retrieves the mapping for one planning entity
func (r *mappingRepository) GetByEntity(ctx context.Context, userID string, ref domain.EntityRef) (*domain.SyncMapping, error) {
	query := `
		SELECT id, user_id, entity_kind, entity_id, event_id, calendar_id, last_synced_at, created_at
		FROM sync_mappings
		WHERE user_id = $1 AND entity_kind = $2 AND entity_id = $3
	`

	m := &domain.SyncMapping{}
	err := r.db.DB.QueryRowContext(ctx, query, userID, ref.Kind, ref.ID).Scan(
		&m.ID,
		&m.UserID,
		&m.EntityKind,
		&m.EntityID,
		&m.EventID,
		&m.CalendarID,
		&m.LastSyncedAt,
		&m.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("mapping for %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}

	return m, nil
}

// TouchSynced refreshes last_synced_at on a successful resync
func (r *mappingRepository) TouchSynced(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sync_mappings SET last_synced_at = $2 WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to touch mapping: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("mapping %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListStale returns mappings not refreshed since olderThan, the diagnostics
// view feeding periodic reconciliation
func (r *mappingRepository) ListStale(ctx context.Context, olderThan time.Time) ([]*domain.SyncMapping, error) {
	query := `
		SELECT id, user_id, entity_kind, entity_id, event_id, calendar_id, last_synced_at, created_at
		FROM sync_mappings
		WHERE last_synced_at < $1
		ORDER BY last_synced_at
	`

	rows, err := r.db.DB.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*domain.SyncMapping
	for rows.Next() {
		m := &domain.SyncMapping{}
		err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.EntityKind,
			&m.EntityID,
			&m.EventID,
			&m.CalendarID,
			&m.LastSyncedAt,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mappings: %w", err)
	}

	return mappings, nil
}

// DeleteByEntity removes the mapping of a deleted planning entity
func (r *mappingRepository) DeleteByEntity(ctx context.Context, userID string, ref domain.EntityRef) error {
	query := `DELETE FROM sync_mappings WHERE user_id = $1 AND entity_kind = $2 AND entity_id = $3`

	if _, err := r.db.DB.ExecContext(ctx, query, userID, ref.Kind, ref.ID); err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}

	return nil
}

// DeleteByEventID removes the mapping that points at an external event
func (r *mappingRepository) DeleteByEventID(ctx context.Context, userID, eventID string) error {
	query := `DELETE FROM sync_mappings WHERE user_id = $1 AND event_id = $2`

	if _, err := r.db.DB.ExecContext(ctx, query, userID, eventID); err != nil {
		return fmt.Errorf("failed to delete mapping by event id: %w", err)
	}

	return nil
}

// DeleteByUserID clears the whole ledger of a user on disconnect, so periodic
// reconciliation never sees mappings without a credential
func (r *mappingRepository) DeleteByUserID(ctx context.Context, userID string) error {
	query := `DELETE FROM sync_mappings WHERE user_id = $1`

	if _, err := r.db.DB.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete mappings: %w", err)
	}

	return nil
}
