package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrQueueEmpty         = errors.New("job queue is empty")
	ErrPaymentRequired    = errors.New("insufficient credit balance")
	ErrInvalidParams      = errors.New("generation params rejected")
	ErrAdapterUnavailable = errors.New("generation backend unavailable")
	ErrGenerationFailed   = errors.New("generation backend reported failure")
	ErrRateLimited        = errors.New("too many requests")

	// Infrastructure-level errors surfaced by repositories
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context passed to repository")
)
