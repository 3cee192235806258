package store

import "errors"

var (
	// ErrNotFound is returned when a bucket/key holds no record (or only a
	// soft-deleted one whose TTL has passed).
	ErrNotFound = errors.New("docket: record not found")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("docket: unknown store backend")

	// ErrInvalidRecord is returned when a stored item cannot be decoded.
	ErrInvalidRecord = errors.New("docket: invalid stored record")
)
