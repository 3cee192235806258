package store

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Record is one stored value: a flat payload plus link and secondary-index
// metadata.
type Record struct {
	// Data maps field names to primitive values: strings, numbers, bools,
	// nil, or lists of those.
	Data map[string]any

	// Links are tagged pointers to other records.
	Links []Link

	// Indexes maps secondary-index names to their values.
	Indexes map[string]any
}

// Link is a tagged pointer from one record to another.
type Link struct {
	// Bucket is the target record's bucket.
	Bucket string

	// Key is the target record's key.
	Key string

	// Tag names the relation.
	Tag string
}

// Clone returns a deep copy of r. A nil record clones to nil.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		Data:    cloneMap(r.Data),
		Indexes: cloneMap(r.Indexes),
	}
	if r.Links != nil {
		out.Links = make([]Link, len(r.Links))
		copy(out.Links, r.Links)
	}
	return out
}

// Value returns the payload value of field, or nil.
func (r *Record) Value(field string) any {
	if r == nil || r.Data == nil {
		return nil
	}
	return r.Data[field]
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	case map[string]any:
		return cloneMap(t)
	default:
		return v
	}
}

// Normalize converts codec-specific containers and integer widths into the
// plain forms used by Record payloads: []any, map[string]any and int64.
func Normalize(v any) any {
	switch t := v.(type) {
	case primitive.A:
		return Normalize([]any(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case []string:
		return cloneValue(t)
	case bson.M:
		return normalizeMap(map[string]any(t))
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = Normalize(e.Value)
		}
		return m
	case map[string]any:
		return normalizeMap(t)
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint32:
		return int64(t)
	case uint16:
		return int64(t)
	case uint8:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}
