package calendar

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// DefaultCalendarID is the calendar events are pushed to when the user has
// not picked one
const DefaultCalendarID = "primary"

// Event is the provider-neutral representation of a calendar event
type Event struct {
	Title       string
	Description string
	StartsAt    time.Time
	EndsAt      time.Time
}

// Client performs event operations against the external calendar provider.
// Access tokens are passed in plaintext by the caller; implementations never
// persist them. All methods return *APIError for provider failures.
type Client interface {
	// CreateEvent creates an event and returns the provider-assigned event id
	CreateEvent(ctx context.Context, accessToken, calendarID string, ev *Event) (string, error)

	// UpdateEvent replaces the event with the given id
	UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev *Event) error

	// DeleteEvent removes the event with the given id
	DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error

	// Exchange trades an authorization code for a token pair
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Refresh obtains a fresh access token from a refresh token
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}
