// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates an authenticated caller may not perform the operation
	// (role or ownership mismatch, inactive caller, self-deactivation).
	ErrForbidden = errors.New("forbidden")

	// ErrConflict indicates a storage constraint clash (e.g., email taken, dangling history reference).
	ErrConflict = errors.New("conflict")

	// ErrBadState indicates the entity is not in a state that allows the operation.
	ErrBadState = errors.New("bad state")

	// ErrUnauthorized indicates failed authentication (bad credentials, missing or invalid token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation indicates missing or malformed command fields.
	ErrValidation = errors.New("validation")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)
