package services

import "errors"

// Error categories surfaced by the orchestrators. Callers distinguish them
// with errors.Is; the HTTP layer maps them onto status codes.
var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrSprintAlreadyActive = errors.New("another sprint is already active for this project")
)
