// Package common defines shared constants and sentinel errors used across
// client and server layers of TripKeeper. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrConflict       = errors.New("conflicting unique key")
	ErrTombstoned     = errors.New("record is deleted")
	ErrParentNotFound = errors.New("parent record not found")

	// ErrLocalStore marks local storage failures. A sync pass that hits one
	// aborts as a whole.
	ErrLocalStore = errors.New("local store unavailable")

	// Sync errors.
	ErrOffline        = errors.New("remote store unreachable")
	ErrSyncInProgress = errors.New("sync already in progress")

	// Service-level errors (generic/internal flow control).
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
