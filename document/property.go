package document

import (
	"fmt"
	"math"

	"github.com/jacentio/docket/store"
)

// Kind classifies what a property means to the engine.
type Kind int

const (
	// KindScalar is a plain stored value.
	KindScalar Kind = iota

	// KindUnique is a scalar whose value may be held by at most one
	// document of the type.
	KindUnique

	// KindReference points at one or more documents of another type.
	KindReference

	// KindBackReference is the collection synthesized on a referenced type,
	// listing the documents that point at it through a named forward
	// reference. It is maintained by the engine and cannot be assigned.
	KindBackReference
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindUnique:
		return "unique"
	case KindReference:
		return "reference"
	case KindBackReference:
		return "back-reference"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ValueKind is the accepted value type of a scalar or unique property.
type ValueKind int

const (
	ValueAny ValueKind = iota
	ValueString
	ValueInt
	ValueFloat
	ValueBool
	ValueList
)

func (v ValueKind) String() string {
	switch v {
	case ValueAny:
		return "any"
	case ValueString:
		return "string"
	case ValueInt:
		return "int"
	case ValueFloat:
		return "float"
	case ValueBool:
		return "bool"
	case ValueList:
		return "list"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(v))
	}
}

// Property describes one schema field.
type Property struct {
	// Name is the field name, also used as the payload key.
	Name string

	// Value is the accepted value kind (scalar and unique properties).
	Value ValueKind

	// Kind selects scalar, unique, reference or back-reference handling.
	Kind Kind

	// Target is the bucket of the referenced type. For back-references it
	// is the bucket of the type holding the forward reference.
	Target string

	// Multi marks a reference holding a list of documents.
	Multi bool

	// Collection names the back-reference collection synthesized on the
	// target type. Only valid on forward references.
	Collection string

	uniqueBucket string
	origin       string
}

// Scalar declares a plain field.
func Scalar(name string, kind ValueKind) Property {
	return Property{Name: name, Value: kind, Kind: KindScalar}
}

// Unique declares a field whose value must be unique across the type.
func Unique(name string, kind ValueKind) Property {
	return Property{Name: name, Value: kind, Kind: KindUnique}
}

// Reference declares a single-document reference to the type registered
// under target. A non-empty collection maintains a back-reference
// collection with that name on the target type.
func Reference(name, target, collection string) Property {
	return Property{Name: name, Kind: KindReference, Target: target, Collection: collection}
}

// MultiReference declares a reference to a list of documents.
func MultiReference(name, target, collection string) Property {
	return Property{Name: name, Kind: KindReference, Target: target, Multi: true, Collection: collection}
}

// UniqueBucket returns the unique-registry bucket of a unique property.
func (p Property) UniqueBucket() string {
	return p.uniqueBucket
}

// Origin returns, for a back-reference, the forward reference field on
// Target that this collection mirrors.
func (p Property) Origin() string {
	return p.origin
}

// holdsDocuments reports whether the value is a document or list of them.
func (p *Property) holdsDocuments() bool {
	return p.Kind == KindReference || p.Kind == KindBackReference
}

// many reports whether the value is a list of documents.
func (p *Property) many() bool {
	return p.Kind == KindBackReference || (p.Kind == KindReference && p.Multi)
}

// check validates and normalizes a scalar value for this property.
func (p *Property) check(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	v = store.Normalize(v)
	switch p.Value {
	case ValueString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ValueInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case uint64:
			if n <= math.MaxInt64 {
				return int64(n), nil
			}
		case float64:
			// math.MaxInt64 rounds to 2^63 as a float64, which int64 cannot hold.
			if n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64 {
				return int64(n), nil
			}
		}
	case ValueFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		}
	case ValueBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ValueList:
		if l, ok := v.([]any); ok && primitive(l) {
			return l, nil
		}
	case ValueAny:
		if primitive(v) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s expects %s, got %T", ErrField, p.Name, p.Value, v)
}

// primitive reports whether v is encodable in a flat record payload.
func primitive(v any) bool {
	switch t := v.(type) {
	case nil, string, bool, int64, float64, uint64:
		return true
	case []any:
		for _, e := range t {
			if !primitive(e) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
