package domain

import "time"

// PlanItem is the read-side projection of a goal or review record, carrying
// just the fields needed to render a calendar event. The planning service
// owns these entities; this service never mutates them.
type PlanItem struct {
	Ref         EntityRef
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
}
