package document

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jacentio/docket/internal/keyspace"
	"github.com/jacentio/docket/store"
)

// Registry holds every document type defined against one store.
// Types are defined once during program startup; Define must not run
// concurrently with document operations.
type Registry struct {
	mu     sync.RWMutex
	store  store.Store
	config Config
	logger *zap.Logger
	types  map[string]*Type
}

// NewRegistry creates a new empty Registry writing through s.
// A nil logger disables logging.
func NewRegistry(s store.Store, cfg Config, logger *zap.Logger) *Registry {
	cfg.validate()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:  s,
		config: cfg,
		logger: logger,
		types:  make(map[string]*Type),
	}
}

// Store returns the backing store.
func (r *Registry) Store() store.Store {
	return r.store
}

// Define registers a document type stored in bucket.
//
// Properties of parents (and their ancestors, oldest first) are applied
// before props, so props win on name collisions. Inherited forward
// references lose their collection. A forward reference with a collection
// synthesizes a back-reference property of that name on the target type
// and on every type descending from it, so documents of a subtype can be
// referenced with the same guarantees; subtypes defined later inherit it.
//
// Define fails with ErrSchema and leaves the registry unchanged when the
// bucket is taken, a collection name clashes, or a reference names an
// unregistered type.
func (r *Registry) Define(bucket string, props []Property, parents ...*Type) (*Type, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is required", ErrSchema)
	}
	if strings.HasPrefix(bucket, keyspace.UniquePrefix) {
		return nil, fmt.Errorf("%w: bucket %q uses the reserved prefix %q", ErrSchema, bucket, keyspace.UniquePrefix)
	}
	if strings.Contains(bucket, keyspace.UniqueSeparator) {
		return nil, fmt.Errorf("%w: bucket %q contains the reserved sequence %q", ErrSchema, bucket, keyspace.UniqueSeparator)
	}
	if _, taken := r.types[bucket]; taken {
		return nil, fmt.Errorf("%w: bucket %q already registered", ErrSchema, bucket)
	}
	for _, p := range parents {
		if p == nil || p.registry != r {
			return nil, fmt.Errorf("%w: parent of %q is not a type of this registry", ErrSchema, bucket)
		}
	}

	t := &Type{
		registry: r,
		bucket:   bucket,
		parents:  parents,
		props:    make(map[string]*Property),
		cache:    newCache(),
	}

	ancestors := linearize(parents)
	inherited := make(map[string]bool)
	for _, a := range ancestors {
		for _, p := range a.declared {
			inherited[p.Name] = true
		}
	}
	backInherited, err := inheritedBackRefs(bucket, ancestors, inherited)
	if err != nil {
		return nil, err
	}
	for _, p := range backInherited {
		if hasProperty(props, p.Name) {
			return nil, fmt.Errorf("%w: %s.%s: overrides an inherited collection", ErrSchema, bucket, p.Name)
		}
		inherited[p.Name] = true
	}

	declared, backRefs, err := r.prepare(bucket, props, inherited, ancestors)
	if err != nil {
		return nil, err
	}
	t.declared = declared

	for _, a := range ancestors {
		for _, p := range a.declared {
			if p.Kind == KindReference {
				p.Collection = ""
			}
			t.add(&p)
		}
	}
	for _, p := range backInherited {
		t.add(&p)
	}
	for _, p := range declared {
		t.add(&p)
	}
	t.reindex()

	// Self-references target the type being defined.
	r.types[bucket] = t
	for _, b := range backRefs {
		for _, target := range r.family(b.target) {
			target.add(&Property{
				Name:   b.collection,
				Kind:   KindBackReference,
				Value:  ValueList,
				Target: bucket,
				Multi:  true,
				origin: b.field,
			})
		}
	}

	r.logger.Debug("defined document type",
		zap.String("bucket", bucket),
		zap.Int("properties", len(t.order)),
		zap.Strings("unique", t.uniques),
		zap.Strings("references", t.references))
	return t, nil
}

// MustDefine is like Define but panics on error. It is intended for
// package-level type definitions.
func (r *Registry) MustDefine(bucket string, props []Property, parents ...*Type) *Type {
	t, err := r.Define(bucket, props, parents...)
	if err != nil {
		panic(err)
	}
	return t
}

type backRef struct {
	target     string
	collection string
	field      string
}

// inheritedBackRefs collects the back-reference collections of ancestors.
// Two ancestors mirroring different references under one name, or an
// inherited field of that name, fail with ErrSchema.
func inheritedBackRefs(bucket string, ancestors []*Type, inherited map[string]bool) ([]Property, error) {
	var out []Property
	seen := make(map[string]Property)
	for _, a := range ancestors {
		for _, name := range a.order {
			p := *a.props[name]
			if p.Kind != KindBackReference {
				continue
			}
			if prev, ok := seen[name]; ok {
				if prev.Target != p.Target || prev.origin != p.origin {
					return nil, fmt.Errorf("%w: %s: ancestors disagree on collection %q", ErrSchema, bucket, name)
				}
				continue
			}
			if inherited[name] {
				return nil, fmt.Errorf("%w: %s: inherited field %q clashes with an inherited collection", ErrSchema, bucket, name)
			}
			seen[name] = p
			out = append(out, p)
		}
	}
	return out, nil
}

// family returns the registered types that are target or descend from it.
func (r *Registry) family(target string) []*Type {
	var out []*Type
	for _, b := range r.sortedBuckets() {
		if t := r.types[b]; t.Is(target) {
			out = append(out, t)
		}
	}
	return out
}

func (r *Registry) sortedBuckets() []string {
	out := make([]string, 0, len(r.types))
	for b := range r.types {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// prepare validates the declared properties of bucket and returns them with
// registry-assigned data filled in, plus the back-references to synthesize.
// Nothing is mutated, so a failing Define leaves every type untouched.
// inherited holds the property names bucket receives from its ancestors.
func (r *Registry) prepare(bucket string, props []Property, inherited map[string]bool, ancestors []*Type) ([]Property, []backRef, error) {
	out := make([]Property, 0, len(props))
	seen := make(map[string]bool, len(props))
	staged := make(map[string]bool)
	var backRefs []backRef

	for _, p := range props {
		if p.Name == "" {
			return nil, nil, fmt.Errorf("%w: %s: property name is required", ErrSchema, bucket)
		}
		if seen[p.Name] {
			return nil, nil, fmt.Errorf("%w: %s: duplicate property %q", ErrSchema, bucket, p.Name)
		}
		seen[p.Name] = true

		switch p.Kind {
		case KindScalar:
			if p.Target != "" || p.Collection != "" {
				return nil, nil, fmt.Errorf("%w: %s.%s: scalar cannot reference a type", ErrSchema, bucket, p.Name)
			}
		case KindUnique:
			if p.Target != "" || p.Collection != "" {
				return nil, nil, fmt.Errorf("%w: %s.%s: unique property cannot be a reference", ErrSchema, bucket, p.Name)
			}
			switch p.Value {
			case ValueString, ValueInt, ValueFloat, ValueBool:
			default:
				return nil, nil, fmt.Errorf("%w: %s.%s: unique property cannot hold %s values", ErrSchema, bucket, p.Name, p.Value)
			}
			if strings.Contains(p.Name, keyspace.UniqueSeparator) {
				return nil, nil, fmt.Errorf("%w: %s.%s: unique property name contains %q", ErrSchema, bucket, p.Name, keyspace.UniqueSeparator)
			}
			p.uniqueBucket = keyspace.UniqueBucket(bucket, p.Name)
		case KindReference:
			if p.Target == "" {
				return nil, nil, fmt.Errorf("%w: %s.%s: reference target is required", ErrSchema, bucket, p.Name)
			}
			_, registered := r.types[p.Target]
			if !registered && p.Target != bucket {
				return nil, nil, fmt.Errorf("%w: %s.%s: unknown reference target %q", ErrSchema, bucket, p.Name, p.Target)
			}
			if p.Collection == "" {
				break
			}

			// The collection lands on the target, its registered subtypes
			// and, when it descends from the target, the type being defined.
			var clash bool
			members := make([]string, 0, 1)
			for _, f := range r.family(p.Target) {
				_, exists := f.props[p.Collection]
				clash = clash || exists
				members = append(members, f.bucket)
			}
			if p.Target == bucket || descends(ancestors, p.Target) {
				clash = clash || inherited[p.Collection] || hasProperty(props, p.Collection)
				members = append(members, bucket)
			}
			for _, m := range members {
				clash = clash || staged[m+"\x00"+p.Collection]
			}
			if clash {
				return nil, nil, fmt.Errorf("%w: %s.%s: collection %q already in %s", ErrSchema, bucket, p.Name, p.Collection, p.Target)
			}
			for _, m := range members {
				staged[m+"\x00"+p.Collection] = true
			}
			backRefs = append(backRefs, backRef{target: p.Target, collection: p.Collection, field: p.Name})
		case KindBackReference:
			return nil, nil, fmt.Errorf("%w: %s.%s: back-references are maintained by the registry", ErrSchema, bucket, p.Name)
		default:
			return nil, nil, fmt.Errorf("%w: %s.%s: unknown property kind %v", ErrSchema, bucket, p.Name, p.Kind)
		}
		out = append(out, p)
	}
	return out, backRefs, nil
}

func descends(ancestors []*Type, bucket string) bool {
	for _, a := range ancestors {
		if a.bucket == bucket {
			return true
		}
	}
	return false
}

func hasProperty(props []Property, name string) bool {
	for _, p := range props {
		if p.Name == name {
			return true
		}
	}
	return false
}

// linearize returns every ancestor reachable through parents, oldest first,
// each exactly once.
func linearize(parents []*Type) []*Type {
	var out []*Type
	visited := make(map[*Type]bool)
	var walk func(t *Type)
	walk = func(t *Type) {
		if visited[t] {
			return
		}
		visited[t] = true
		for _, p := range t.parents {
			walk(p)
		}
		out = append(out, t)
	}
	for _, p := range parents {
		walk(p)
	}
	return out
}

// TypeOf returns the type registered for bucket.
func (r *Registry) TypeOf(bucket string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, bucket)
	}
	return t, nil
}

// Types returns the registered bucket names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedBuckets()
}

// Reset drops every registered type and its identity cache. Types obtained
// before Reset keep working against the store but are no longer resolvable
// by bucket name.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		t.cache.clear()
	}
	r.types = make(map[string]*Type)
}
