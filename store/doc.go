// Package store provides the key-value collaborator used by the document
// engine: a narrow get/put/delete/exists interface over named buckets, plus
// backends for memory, SQLite, DynamoDB and S3.
//
// # Records
//
// A [Record] is a flat payload (field name to primitive value) with optional
// link metadata and secondary-index metadata:
//
//	rec := &store.Record{
//	    Data:    map[string]any{"name": "alice", "age": int64(30)},
//	    Links:   []store.Link{{Bucket: "teams", Key: "core", Tag: "member"}},
//	    Indexes: map[string]any{"age_int": int64(30)},
//	}
//
// # Quorum options
//
// Reads and writes accept per-call quorum parameters ([WithR], [WithW],
// [WithDW]). Backends without quorum semantics ignore them; [DynamoStore]
// maps R >= 2 to a strongly consistent read.
//
// # Conditional writes
//
// Backends that can write atomically only when a key is absent implement
// [ConditionalPutter]. The document engine uses it to claim unique values
// without a check-then-write race.
//
// # Backends
//
// Use [Open] to select a backend by name:
//
//	s, err := store.Open(ctx, store.Options{Backend: "sqlite", Path: "data/docket.db"})
//
// # Errors
//
//   - [ErrNotFound] - no live record under bucket/key
//   - [ErrUnknownBackend] - Open was given an unsupported backend name
//   - [ErrInvalidRecord] - a stored item could not be decoded
package store
