package store

import "context"

// Store is the key-value collaborator the document engine writes through.
// Buckets are flat namespaces; keys are unique within a bucket.
type Store interface {
	// Get returns the record stored under bucket/key, or ErrNotFound.
	Get(ctx context.Context, bucket, key string, opts ...ReadOption) (*Record, error)

	// Put creates or overwrites the record stored under bucket/key.
	Put(ctx context.Context, bucket, key string, rec *Record, opts ...WriteOption) error

	// Delete removes bucket/key. Deleting an absent key is not an error.
	Delete(ctx context.Context, bucket, key string, opts ...WriteOption) error

	// Exists reports whether bucket/key currently holds a record.
	Exists(ctx context.Context, bucket, key string, opts ...ReadOption) (bool, error)
}

// ConditionalPutter is implemented by backends with an atomic
// put-if-absent primitive.
type ConditionalPutter interface {
	// PutIfAbsent writes rec only if bucket/key holds no record.
	// It reports whether the write happened.
	PutIfAbsent(ctx context.Context, bucket, key string, rec *Record, opts ...WriteOption) (bool, error)
}

// ReadOptions carries per-call read quorum parameters.
type ReadOptions struct {
	// R is the read quorum. Zero leaves the backend default.
	R int
}

// WriteOptions carries per-call write quorum parameters.
type WriteOptions struct {
	// W is the write quorum. Zero leaves the backend default.
	W int

	// DW is the durable write quorum. Zero leaves the backend default.
	DW int
}

// ReadOption configures a read.
type ReadOption func(*ReadOptions)

// WriteOption configures a write.
type WriteOption func(*WriteOptions)

// WithR sets the read quorum.
func WithR(r int) ReadOption {
	return func(o *ReadOptions) { o.R = r }
}

// WithW sets the write quorum.
func WithW(w int) WriteOption {
	return func(o *WriteOptions) { o.W = w }
}

// WithDW sets the durable write quorum.
func WithDW(dw int) WriteOption {
	return func(o *WriteOptions) { o.DW = dw }
}

// ApplyRead folds opts into a ReadOptions value.
func ApplyRead(opts ...ReadOption) ReadOptions {
	var o ReadOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// ApplyWrite folds opts into a WriteOptions value.
func ApplyWrite(opts ...WriteOption) WriteOptions {
	var o WriteOptions
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
