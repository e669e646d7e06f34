package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// googleClient implements Client against the Google Calendar v3 REST API
type googleClient struct {
	conf    *oauth2.Config
	http    *http.Client
	baseURL string
}

// NewGoogleClient creates a Google Calendar client
func NewGoogleClient(clientID, clientSecret, redirectURL string) Client {
	return &googleClient{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/calendar.events"},
			Endpoint:     google.Endpoint,
		},
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
	}
}

// googleEvent is the wire format of a Google Calendar event
type googleEvent struct {
	ID          string         `json:"id,omitempty"`
	Summary     string         `json:"summary"`
	Description string         `json:"description,omitempty"`
	Start       googleDateTime `json:"start"`
	End         googleDateTime `json:"end"`
}

type googleDateTime struct {
	DateTime string `json:"dateTime"`
}

func toGoogleEvent(ev *Event) *googleEvent {
	return &googleEvent{
		Summary:     ev.Title,
		Description: ev.Description,
		Start:       googleDateTime{DateTime: ev.StartsAt.Format(time.RFC3339)},
		End:         googleDateTime{DateTime: ev.EndsAt.Format(time.RFC3339)},
	}
}

// CreateEvent creates an event and returns the provider-assigned event id
func (g *googleClient) CreateEvent(ctx context.Context, accessToken, calendarID string, ev *Event) (string, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events", g.baseURL, url.PathEscape(calendarID))

	var created googleEvent
	if err := g.do(ctx, http.MethodPost, endpoint, accessToken, toGoogleEvent(ev), &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// UpdateEvent replaces the event with the given id
func (g *googleClient) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev *Event) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", g.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))
	return g.do(ctx, http.MethodPut, endpoint, accessToken, toGoogleEvent(ev), nil)
}

// DeleteEvent removes the event with the given id
func (g *googleClient) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s", g.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))
	return g.do(ctx, http.MethodDelete, endpoint, accessToken, nil, nil)
}

// Exchange trades an authorization code for a token pair
func (g *googleClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := g.conf.Exchange(ctx, code)
	if err != nil {
		return nil, classifyOAuthError(err, "authorization code exchange failed")
	}
	return token, nil
}

// Refresh obtains a fresh access token from a refresh token
func (g *googleClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	source := g.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, classifyOAuthError(err, "token refresh failed")
	}
	return token, nil
}

func (g *googleClient) do(ctx context.Context, method, endpoint, accessToken string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return &APIError{Kind: FailureOther, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, string(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// classifyStatus maps a provider HTTP status to a typed failure. Google
// reports quota exhaustion as 429, and sometimes as 403 with a
// rateLimitExceeded reason.
func classifyStatus(status int, body string) *APIError {
	kind := FailureOther
	switch {
	case status == http.StatusTooManyRequests:
		kind = FailureQuota
	case status == http.StatusForbidden && isQuotaBody(body):
		kind = FailureQuota
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = FailureAuth
	case status == http.StatusNotFound || status == http.StatusGone:
		kind = FailureNotFound
	}
	return &APIError{Kind: kind, StatusCode: status, Message: truncate(body, 256)}
}

func isQuotaBody(body string) bool {
	return strings.Contains(body, "rateLimitExceeded") ||
		strings.Contains(body, "userRateLimitExceeded") ||
		strings.Contains(body, "quotaExceeded")
}

// classifyOAuthError maps oauth2 endpoint failures. An invalid_grant response
// means the refresh token was revoked, which is an auth failure; transport
// errors stay unclassified.
func classifyOAuthError(err error, msg string) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.Response.StatusCode
		if code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden {
			return &APIError{Kind: FailureAuth, StatusCode: code, Message: fmt.Sprintf("%s: %v", msg, err)}
		}
		if code == http.StatusTooManyRequests {
			return &APIError{Kind: FailureQuota, StatusCode: code, Message: fmt.Sprintf("%s: %v", msg, err)}
		}
	}
	return &APIError{Kind: FailureOther, Message: fmt.Sprintf("%s: %v", msg, err)}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
