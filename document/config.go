package document

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Fields maps field names to values.
type Fields map[string]any

// KeyFunc generates a key for a new document from its initial fields.
type KeyFunc func(fields Fields) (string, error)

// Config holds configuration for a Registry.
type Config struct {
	// KeyFunc generates keys for documents created without an explicit key.
	// Default: UUIDKey
	KeyFunc KeyFunc

	// StrictReferences makes Load fail when a referenced document is
	// missing. By default dangling keys are skipped and logged.
	StrictReferences bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyFunc: UUIDKey,
	}
}

// validate fills in defaults for empty values.
func (c *Config) validate() {
	if c.KeyFunc == nil {
		c.KeyFunc = UUIDKey
	}
}

// UUIDKey returns a time-based (version 1) UUID as 32 hex characters.
func UUIDKey(Fields) (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}
