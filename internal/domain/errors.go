package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrStoreUnavailable is the one failure a dispatch reports to its caller:
	// the subscription store could not be read, so no delivery was attempted.
	ErrStoreUnavailable = errors.New("subscription store unavailable")
)
