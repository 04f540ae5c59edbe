package storage

import "errors"

// Sentinel errors shared by every store implementation. Implementations wrap
// them with context; callers branch with errors.Is.
var (
	// ErrNotFound reports that no record exists for the requested key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey reports an insert whose key already exists. The ledger
	// and vote stores are append-only, so a duplicate is never overwritten.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput reports a record that failed validation before any I/O.
	ErrInvalidInput = errors.New("invalid input")
)
