// Package errs defines the sentinel errors shared across the service.
// Callers wrap them with context and the HTTP layer classifies them
// into status codes; nothing below the API boundary knows about HTTP.
package errs

import "errors"

var (
	// ErrNotFound marks a missing entity, request, or session.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a lost race: deciding a non-pending request or a
	// duplicate name discovered at approval time.
	ErrConflict = errors.New("conflict")

	// ErrForbidden marks insufficient privilege for the attempted operation.
	ErrForbidden = errors.New("forbidden")

	// ErrQuotaExceeded marks an unauthenticated caller that used up the
	// daily operation ceiling.
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrInvalidInput marks a malformed payload or unknown request type.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState marks a request that cannot be approved as-is, e.g.
	// its quarantined file or target entity vanished. The request stays
	// pending for a follow-up decision.
	ErrInvalidState = errors.New("invalid state")
)
