package document

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jacentio/docket/store"
)

var (
	// ErrSchema is returned by Define for an invalid type definition: a
	// duplicate bucket or collection name, or a reference to an unregistered
	// type. It is fatal to that type's registration.
	ErrSchema = errors.New("docket: invalid schema")

	// ErrUnknownType is returned when no type is registered for a bucket.
	ErrUnknownType = errors.New("docket: unknown document type")

	// ErrKey is returned by New for an invalid key or a key that already
	// has a live instance (use Load to obtain existing documents).
	ErrKey = errors.New("docket: invalid document key")

	// ErrField is returned when assigning an unknown field, a maintained
	// back-reference collection, or a value of the wrong kind.
	ErrField = errors.New("docket: invalid field assignment")

	// ErrUniqueConstraint is returned by Save when a unique field's new value
	// is already owned by another key. The document has not been written.
	ErrUniqueConstraint = errors.New("docket: duplicate value for unique field")

	// ErrNotFound is returned when a document does not exist in the store,
	// or when reloading a document that was never saved.
	ErrNotFound = errors.New("docket: document not found")

	// ErrCascade is matched by CascadeError.
	ErrCascade = errors.New("docket: cascade save failed")
)

// notFound wraps both ErrNotFound and store.ErrNotFound.
func notFound(bucket, key string) error {
	return fmt.Errorf("%w: %s/%s: %w", ErrNotFound, bucket, key, store.ErrNotFound)
}

// CascadeError reports documents whose cascading save failed after the
// primary document was committed. The primary write is not rolled back;
// callers needing strict consistency must save the listed documents again.
type CascadeError struct {
	// Refs lists the failed documents as "bucket/key".
	Refs []string

	// Err combines the individual failures.
	Err error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrCascade, strings.Join(e.Refs, ", "), e.Err)
}

func (e *CascadeError) Unwrap() []error {
	return []error{ErrCascade, e.Err}
}
