// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested entity does not exist or is not
	// owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a missing or invalid grant or signature.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates a valid credential whose entitlement does not
	// cover the requested resource.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates a uniqueness violation, e.g. a reused checkout
	// session id.
	ErrConflict = errors.New("conflict")

	// ErrNotConfigured indicates a provider integration has no credentials.
	ErrNotConfigured = errors.New("not configured")

	// ErrUpstream indicates an unexpected provider failure.
	ErrUpstream = errors.New("upstream failure")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failure")
)
