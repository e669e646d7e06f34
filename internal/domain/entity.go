package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// EntityKind identifies which planning entity a sync mapping refers to
type EntityKind string

const (
	KindGoal            EntityKind = "goal"
	KindWeeklyReview    EntityKind = "weekly_review"
	KindMonthlyReview   EntityKind = "monthly_review"
	KindQuarterlyReview EntityKind = "quarterly_review"
	KindAnnualReview    EntityKind = "annual_review"
)

var validKinds = map[EntityKind]bool{
	KindGoal:            true,
	KindWeeklyReview:    true,
	KindMonthlyReview:   true,
	KindQuarterlyReview: true,
	KindAnnualReview:    true,
}

// Valid reports whether the kind is one of the supported planning entities
func (k EntityKind) Valid() bool {
	return validKinds[k]
}

// EntityRef is a validated reference to exactly one planning entity.
// Construct it with NewEntityRef so unknown kinds are rejected at the boundary.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// NewEntityRef validates kind against the closed allow-list and id as a UUID
func NewEntityRef(kind EntityKind, id string) (EntityRef, error) {
	if !kind.Valid() {
		return EntityRef{}, fmt.Errorf("unsupported entity kind %q", kind)
	}
	if _, err := uuid.Parse(id); err != nil {
		return EntityRef{}, fmt.Errorf("invalid entity id %q: %w", id, err)
	}
	return EntityRef{Kind: kind, ID: id}, nil
}

// String returns the ref in "kind/id" form, used in log fields and lock keys
func (r EntityRef) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.ID)
}
