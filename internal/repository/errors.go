package repository

import "errors"

// Common repository errors
var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateCredential is returned when a user already has a credential
	// for the provider
	ErrDuplicateCredential = errors.New("calendar credential already exists")

	// ErrDuplicateEvent is returned when a mapping would reuse an external
	// event id already mapped for the same user
	ErrDuplicateEvent = errors.New("external event already mapped for this user")
)
