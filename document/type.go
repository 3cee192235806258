package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jacentio/docket/store"
)

// Type is the metadata of one registered document type, built once by
// Registry.Define.
type Type struct {
	registry *Registry
	bucket   string
	parents  []*Type

	// declared holds the type's own properties with registry data filled in.
	// Subtypes inherit from it.
	declared []Property

	props      map[string]*Property
	order      []string
	uniques    []string
	references []string

	cache *cache
}

// add installs p, keeping the position of an overridden property.
func (t *Type) add(p *Property) {
	if _, exists := t.props[p.Name]; !exists {
		t.order = append(t.order, p.Name)
	}
	t.props[p.Name] = p
}

func (t *Type) reindex() {
	t.uniques = t.uniques[:0]
	t.references = t.references[:0]
	for _, name := range t.order {
		switch t.props[name].Kind {
		case KindUnique:
			t.uniques = append(t.uniques, name)
		case KindReference:
			t.references = append(t.references, name)
		}
	}
}

// Bucket returns the storage bucket of the type.
func (t *Type) Bucket() string {
	return t.bucket
}

// Registry returns the registry the type was defined in.
func (t *Type) Registry() *Registry {
	return t.registry
}

// Property returns the descriptor of the named field.
func (t *Type) Property(name string) (Property, bool) {
	p, ok := t.props[name]
	if !ok {
		return Property{}, false
	}
	return *p, true
}

// Properties returns every descriptor in declaration order, inherited
// properties first and synthesized back-references last.
func (t *Type) Properties() []Property {
	out := make([]Property, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.props[name])
	}
	return out
}

// UniqueFields returns the names of the unique fields in declaration order.
func (t *Type) UniqueFields() []string {
	return append([]string(nil), t.uniques...)
}

// ReferenceFields returns the names of the forward reference fields.
func (t *Type) ReferenceFields() []string {
	return append([]string(nil), t.references...)
}

// Is reports whether t is the type registered under bucket or descends
// from it.
func (t *Type) Is(bucket string) bool {
	if t.bucket == bucket {
		return true
	}
	for _, p := range t.parents {
		if p.Is(bucket) {
			return true
		}
	}
	return false
}

func (t *Type) logger() *zap.Logger {
	return t.registry.logger
}

func (t *Type) store() store.Store {
	return t.registry.store
}

// NewOption configures New.
type NewOption func(*newOptions)

type newOptions struct {
	key       string
	keyFunc   KeyFunc
	persisted bool
}

// WithKey sets an explicit key.
func WithKey(key string) NewOption {
	return func(o *newOptions) { o.key = key }
}

// WithKeyFunc generates the key from the initial fields.
func WithKeyFunc(fn KeyFunc) NewOption {
	return func(o *newOptions) { o.keyFunc = fn }
}

// Persisted marks the document as already stored. Its stored record is
// fetched immediately and becomes the baseline of the next Save.
func Persisted() NewOption {
	return func(o *newOptions) { o.persisted = true }
}

// New creates a document of type t with the given initial fields.
//
// New fails with ErrKey when the key is invalid or a live instance with that
// key already exists; use Load to obtain existing documents.
func (t *Type) New(ctx context.Context, fields Fields, opts ...NewOption) (*Document, error) {
	var o newOptions
	for _, fn := range opts {
		fn(&o)
	}

	key := o.key
	if key == "" {
		keyFunc := o.keyFunc
		if keyFunc == nil {
			keyFunc = t.registry.config.KeyFunc
		}
		var err error
		if key, err = keyFunc(fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKey, err)
		}
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if t.cache.get(key) != nil {
		return nil, fmt.Errorf("%w: %s/%s is already loaded", ErrKey, t.bucket, key)
	}

	d := newDocument(t, key)
	if o.persisted {
		rec, err := t.fetch(ctx, key)
		if err != nil {
			return nil, err
		}
		d.backing = rec
		d.persisted = true
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := d.Set(name, fields[name]); err != nil {
			return nil, err
		}
	}

	t.cache.put(key, d)
	return d, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrKey)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("%w: %q is not valid UTF-8", ErrKey, key)
	}
	if strings.ContainsRune(key, '/') {
		return fmt.Errorf("%w: %q contains '/'", ErrKey, key)
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains a control character", ErrKey, key)
		}
	}
	return nil
}

// fetch reads the stored record of key.
func (t *Type) fetch(ctx context.Context, key string, opts ...store.ReadOption) (*store.Record, error) {
	rec, err := t.store().Get(ctx, t.bucket, key, opts...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(t.bucket, key)
		}
		return nil, fmt.Errorf("get %s/%s: %w", t.bucket, key, err)
	}
	return rec, nil
}

// Load returns the document stored under key.
//
// With cached set, a live instance is returned as-is. Without it, a live
// instance is reloaded from the store and returned; the same instance is
// returned either way. Load fails with ErrNotFound when key is not stored.
func (t *Type) Load(ctx context.Context, key string, cached bool, opts ...store.ReadOption) (*Document, error) {
	if d := t.cache.get(key); d != nil {
		if !cached {
			if err := d.Reload(ctx, opts...); err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	rec, err := t.fetch(ctx, key, opts...)
	if err != nil {
		return nil, err
	}
	return t.hydrate(ctx, key, rec)
}

// Get is Load with caching.
func (t *Type) Get(ctx context.Context, key string) (*Document, error) {
	return t.Load(ctx, key, true)
}

// LoadRecord builds the document of key from a record the caller already
// fetched, such as a query result. A live instance is returned as-is when
// cached is set, and repopulated from rec otherwise.
func (t *Type) LoadRecord(ctx context.Context, key string, rec *store.Record, cached bool) (*Document, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record for %s/%s", store.ErrInvalidRecord, t.bucket, key)
	}
	if d := t.cache.get(key); d != nil {
		if !cached {
			if err := d.populate(ctx, rec.Clone()); err != nil {
				return nil, err
			}
			d.persisted = true
		}
		return d, nil
	}
	return t.hydrate(ctx, key, rec.Clone())
}

// hydrate builds a persisted document from rec. The placeholder is cached
// before its fields are populated, so a reentrant load of key through a
// reference cycle returns it instead of recursing.
//
// Documents hydrated while resolving references join the outermost load.
// If it fails, all of them are evicted, since they may point at the
// half-populated placeholder.
func (t *Type) hydrate(ctx context.Context, key string, rec *store.Record) (*Document, error) {
	b, nested := ctx.Value(hydrationKey{}).(*hydration)
	if !nested {
		b = &hydration{}
		ctx = context.WithValue(ctx, hydrationKey{}, b)
	}

	d := newDocument(t, key)
	d.persisted = true
	t.cache.put(key, d)
	b.docs = append(b.docs, d)

	if err := d.populate(ctx, rec); err != nil {
		t.cache.remove(key, d)
		if !nested {
			b.evict()
		}
		return nil, err
	}
	t.logger().Debug("loaded document", zap.String("bucket", t.bucket), zap.String("key", key))
	return d, nil
}

type hydrationKey struct{}

// hydration lists the documents cached by one outermost load.
type hydration struct {
	docs []*Document
}

func (h *hydration) evict() {
	for _, d := range h.docs {
		d.typ.cache.remove(d.key, d)
	}
}

// Exists reports whether key is stored.
func (t *Type) Exists(ctx context.Context, key string, opts ...store.ReadOption) (bool, error) {
	ok, err := t.store().Exists(ctx, t.bucket, key, opts...)
	if err != nil {
		return false, fmt.Errorf("exists %s/%s: %w", t.bucket, key, err)
	}
	return ok, nil
}

// Cached returns the live instance of key without touching the store.
func (t *Type) Cached(key string) (*Document, bool) {
	d := t.cache.get(key)
	return d, d != nil
}
