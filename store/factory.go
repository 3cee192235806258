package store

import (
	"context"
	"fmt"
)

// Open creates a Store based on opts.Backend.
//
// Supported backends:
//
//	"memory"   - in-memory (ephemeral, for testing; default)
//	"sqlite"   - SQLite database at opts.Path
//	"dynamodb" - single DynamoDB table, see DynamoConfig
//	"s3"       - one object per record, see S3Config
func Open(ctx context.Context, opts Options) (Store, error) {
	opts.validate()
	switch opts.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSqliteStore(opts.Path)
	case "dynamodb":
		return NewDynamoFromConfig(ctx, opts.Dynamo)
	case "s3":
		return NewS3FromConfig(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("%w: %q (supported: memory, sqlite, dynamodb, s3)", ErrUnknownBackend, opts.Backend)
	}
}
