package contract

import "errors"

var (
	// ErrValidation marks malformed input to a public operation. The
	// operation has no side effect and the caller is at fault.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks an operation the current state forbids: a second
	// active hold, or a write to a terminal conversation.
	ErrConflict = errors.New("conflicts with current state")

	// ErrConsentRequired marks an action gated on missing consent.
	ErrConsentRequired = errors.New("consent required")

	// ErrHoldNotActive marks an operation on a hold in a terminal status.
	ErrHoldNotActive = errors.New("hold is not active")

	// ErrStaleWrite marks a lost optimistic-concurrency race on persistence.
	// Callers reload and retry a bounded number of times.
	ErrStaleWrite = errors.New("stale write")

	// ErrCollaboratorUnavailable marks an extractor or calendar failure.
	// Idempotent operations may be retried with backoff.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
