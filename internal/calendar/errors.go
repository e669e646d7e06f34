package calendar

import (
	"errors"
	"fmt"
)

// FailureKind classifies an external calendar API failure. Every call into
// the client must be interpreted through this classification before any
// credential or mapping state is mutated.
type FailureKind string

const (
	// FailureQuota means the provider rejected the call for rate/quota reasons
	FailureQuota FailureKind = "quota"

	// FailureAuth means the credential was rejected; the user must reconnect
	FailureAuth FailureKind = "auth"

	// FailureNotFound means the referenced event no longer exists
	FailureNotFound FailureKind = "not_found"

	// FailureOther covers every unclassified provider failure
	FailureOther FailureKind = "other"
)

// APIError is a typed failure raised by the external calendar client
type APIError struct {
	Kind       FailureKind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("calendar api: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("calendar api: %s: %s", e.Kind, e.Message)
}

// KindOf extracts the failure kind from an error chain. Errors that did not
// originate in the calendar client classify as FailureOther.
func KindOf(err error) FailureKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return FailureOther
}

// IsNotFound reports whether err is an idempotent "already gone" failure
func IsNotFound(err error) bool {
	return KindOf(err) == FailureNotFound
}
