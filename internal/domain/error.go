package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrQueueFull          = errors.New("submission queue full")
	ErrJobTerminal        = errors.New("job already in a terminal state")
	ErrJobTimeout         = errors.New("job exceeded its wall-clock ceiling")
	ErrBackendUnavailable = errors.New("render backend unavailable")
	ErrCircuitOpen        = errors.New("subject circuit breaker open")
	ErrSubjectPaused      = errors.New("subject is paused")
	ErrDailyCapReached    = errors.New("subject daily generation cap reached")
	ErrLockNotAcquired    = errors.New("could not acquire lock")
	ErrInvalidExecContext = errors.New("invalid execution context for query")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
