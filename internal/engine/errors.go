package engine

import "errors"

var (
	// ErrInvalidOperation covers self-actions and malformed input.
	// Terminal; surfaced to the caller as a 4xx.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNotFound means the target profile or match does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateAction means the requested state already holds.
	// Recoverable; callers treat it as success with no change. It is
	// surfaced so upper layers can short-circuit redundant fanout.
	ErrDuplicateAction = errors.New("duplicate action")

	// ErrBusy means the pair lock could not be acquired in time.
	// Callers retry a bounded number of times with backoff.
	ErrBusy = errors.New("pair busy")
)
