package storage

import "errors"

// Storage errors shared across implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyDecided is returned by conditional status updates when the
	// guard column no longer matches (the record was decided by another
	// writer between read and write).
	ErrAlreadyDecided = errors.New("already decided: conditional update matched no rows")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
