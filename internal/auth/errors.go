package auth

import "errors"

// Error taxonomy surfaced by the auth service. Callers match with errors.Is;
// the boundary maps each kind to a status class.
var (
	ErrConflict        = errors.New("auth: conflict")
	ErrInvalidRole     = errors.New("auth: invalid role")
	ErrNotFound        = errors.New("auth: not found")
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrInternal        = errors.New("auth: internal error")
	ErrWeakCredential  = errors.New("auth: weak credential")
	ErrInvalidInput    = errors.New("auth: invalid input")

	// ErrRoleNotFound is returned by role stores when a referenced role is undefined.
	ErrRoleNotFound = errors.New("auth: role not found")
)
