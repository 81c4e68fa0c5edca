package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrConflict           = errors.New("state conflict")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// Intake / payment errors
	ErrUnknownAutomation   = errors.New("unknown automation")
	ErrDuplicatePayment    = errors.New("payment proof already used")
	ErrInvalidPaymentProof = errors.New("invalid payment proof")

	// Worker errors
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrNotConfigured   = errors.New("adapter not configured")
)
