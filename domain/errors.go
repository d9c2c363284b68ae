package domain

import "errors"

// Sentinel errors for the replay command surface. Handlers map these to
// HTTP status codes with errors.Is.
var (
	// ErrNotFound is returned for unknown replay, session, or marker ids,
	// and for jumpTo targets with no matching event.
	ErrNotFound = errors.New("not found")

	// ErrSessionNotFound is returned when the underlying recorded session
	// does not exist in the session store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRange is returned for out-of-range positions, non-positive
	// speed multipliers, inverted segments, and marker timestamps outside
	// the timeline span.
	ErrInvalidRange = errors.New("invalid range")

	// ErrTombstoned is returned for any command against a closed replay
	// session. A closed replay id is never reused.
	ErrTombstoned = errors.New("replay session closed")

	// ErrForbidden is returned when the share policy denies a collaborator
	// a command on a shared replay.
	ErrForbidden = errors.New("forbidden by share policy")
)
