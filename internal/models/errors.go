package models

import "errors"

// Domain error taxonomy. Services wrap these sentinels with context; the API
// layer maps them to HTTP statuses with errors.Is.
var (
	// ErrInvalidArgument marks a validation failure in caller input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict marks a uniqueness violation such as a duplicate
	// canonical id.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks an id or canonical id unknown within the caller's
	// access scope.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks a caller lacking the role or team membership an
	// operation requires.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState marks an operation the current lifecycle status does
	// not permit.
	ErrInvalidState = errors.New("invalid state")

	// ErrUpstream marks a scheduler or scanner failure. Fatal to the scan
	// it belongs to, never to the registry.
	ErrUpstream = errors.New("upstream failure")

	// ErrInternal marks an unexpected failure.
	ErrInternal = errors.New("internal error")
)
