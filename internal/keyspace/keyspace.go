// Package keyspace derives storage names and partition keys deterministically,
// so records written by one process stay reachable after a restart.
package keyspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// UniquePrefix starts every unique-registry bucket name. Document buckets
// must not use it.
const UniquePrefix = "_"

// UniqueSeparator joins bucket and field in a unique-registry bucket name.
// Neither part may contain it, or two pairs could share a bucket.
const UniqueSeparator = "_ul_"

// UniqueBucket returns the unique-registry bucket for a (bucket, field) pair.
func UniqueBucket(bucket, field string) string {
	return UniquePrefix + bucket + UniqueSeparator + field
}

// IsUniqueBucket reports whether name was produced by UniqueBucket.
func IsUniqueBucket(name string) bool {
	return strings.HasPrefix(name, UniquePrefix) && strings.Contains(name, UniqueSeparator)
}

// RecordPK computes a hash-distributed partition key for bucket/key.
// This spreads every record over its own partition and bounds the key
// length regardless of how long user keys or unique values are.
func RecordPK(bucket, key string) string {
	data := fmt.Sprintf("%s#%s", bucket, key)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:16]) // 128-bit hash as hex
}

// ObjectKey returns the object-store key for bucket/key under prefix.
// Both parts are path-escaped so slashes in keys cannot collide.
func ObjectKey(prefix, bucket, key string) string {
	parts := []string{url.PathEscape(bucket), url.PathEscape(key)}
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, "/")
}
