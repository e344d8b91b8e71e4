// Package common defines shared constants and sentinel errors used across
// lexsync components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrStorage  = errors.New("local storage unavailable")

	// Store contract errors (programming errors, never retried).
	ErrInvalidIndex      = errors.New("unknown index")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrDuplicate         = errors.New("duplicate value for unique index")

	// Remote backend errors.
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRejected     = errors.New("rejected by server")
	ErrConflict     = errors.New("version conflict")
)
