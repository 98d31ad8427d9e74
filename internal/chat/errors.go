package chat

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict is reserved for future chat-creation uniqueness checks.
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
