package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/planwell/calendar-sync/internal/domain"
	"github.com/planwell/calendar-sync/pkg/database"
)

// planningRepository implements PlanningRepository against the planning
// service's goals and reviews tables (read-only)
type planningRepository struct {
	db *database.Postgres
}

// NewPlanningRepository creates a new planning read repository
func NewPlanningRepository(db *database.Postgres) PlanningRepository {
	return &planningRepository{db: db}
}

// ListSyncEligible returns every goal and review of the user that carries a
// schedule and has calendar sync enabled
func (r *planningRepository) ListSyncEligible(ctx context.Context, userID string) ([]*domain.PlanItem, error) {
	query := `
		SELECT 'goal' AS kind, id, title, COALESCE(description, ''), starts_at, ends_at
		FROM goals
		WHERE user_id = $1 AND sync_enabled = true AND starts_at IS NOT NULL
		UNION ALL
		SELECT kind, id, title, COALESCE(notes, ''), starts_at, ends_at
		FROM reviews
		WHERE user_id = $1 AND starts_at IS NOT NULL
		ORDER BY starts_at
	`

	rows, err := r.db.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync-eligible items: %w", err)
	}
	defer rows.Close()

	var items []*domain.PlanItem
	for rows.Next() {
		item, err := scanPlanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plan items: %w", err)
	}

	return items, nil
}

// GetByRef loads a single goal or review. Returns ErrNotFound when the entity
// was deleted between enqueue and execution.
func (r *planningRepository) GetByRef(ctx context.Context, userID string, ref domain.EntityRef) (*domain.PlanItem, error) {
	var query string
	if ref.Kind == domain.KindGoal {
		query = `
			SELECT 'goal' AS kind, id, title, COALESCE(description, ''), starts_at, ends_at
			FROM goals
			WHERE user_id = $1 AND id = $2 AND sync_enabled = true AND starts_at IS NOT NULL
		`
	} else {
		query = `
			SELECT kind, id, title, COALESCE(notes, ''), starts_at, ends_at
			FROM reviews
			WHERE user_id = $1 AND id = $2 AND starts_at IS NOT NULL
		`
	}

	item, err := scanPlanItem(r.db.DB.QueryRowContext(ctx, query, userID, ref.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("plan item %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get plan item: %w", err)
	}

	// A row can come back under a different review kind than the task named;
	// trust the stored kind
	return item, nil
}

func scanPlanItem(row rowScanner) (*domain.PlanItem, error) {
	item := &domain.PlanItem{}
	var kind string
	var endsAt sql.NullTime

	err := row.Scan(
		&kind,
		&item.Ref.ID,
		&item.Title,
		&item.Description,
		&item.StartsAt,
		&endsAt,
	)
	if err != nil {
		return nil, err
	}

	// An open-ended item keeps a zero end time; the sync engine applies a
	// default duration
	if endsAt.Valid {
		item.EndsAt = endsAt.Time
	}
	item.Ref.Kind = domain.EntityKind(kind)
	return item, nil
}
