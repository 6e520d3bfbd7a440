package domain

import "errors"

// Error kinds surfaced by hub operations. Boundary handlers translate
// these into {error: …} payloads; they are never mapped to transport
// status codes inside the core.
var (
	ErrNotFound      = errors.New("NOT_FOUND")
	ErrLockHeld      = errors.New("LOCK_HELD")
	ErrInvalidInput  = errors.New("INVALID_INPUT")
	ErrContradiction = errors.New("CONTRADICTION")
	ErrDegraded      = errors.New("DEGRADED")
	ErrUnknownTool   = errors.New("UNKNOWN_TOOL")
)
