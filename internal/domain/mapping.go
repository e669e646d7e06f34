package domain

import "time"

// StaleThreshold is the age after which a mapping is due for reconciliation
const StaleThreshold = 24 * time.Hour

// SyncMapping correlates one planning entity with one external calendar event.
// At most one mapping exists per (user, entity kind, entity id); the external
// event id is unique per user.
type SyncMapping struct {
	ID           string     `json:"id" db:"id"`
	UserID       string     `json:"user_id" db:"user_id"`
	EntityKind   EntityKind `json:"entity_kind" db:"entity_kind"`
	EntityID     string     `json:"entity_id" db:"entity_id"`
	EventID      string     `json:"event_id" db:"event_id"`
	CalendarID   string     `json:"calendar_id" db:"calendar_id"`
	LastSyncedAt time.Time  `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// Ref returns the entity reference this mapping belongs to
func (m *SyncMapping) Ref() EntityRef {
	return EntityRef{Kind: m.EntityKind, ID: m.EntityID}
}

// IsStale reports whether the mapping has not been refreshed within the threshold
func (m *SyncMapping) IsStale(now time.Time) bool {
	return now.Sub(m.LastSyncedAt) > StaleThreshold
}
