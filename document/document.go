package document

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jacentio/docket/store"
)

// Document is one typed, identity-bearing projection of a stored record.
// A document is not safe for concurrent use.
type Document struct {
	typ *Type
	key string

	// values holds normalized scalars, *Document for single references and
	// []*Document for multi references and back-reference collections.
	values map[string]any

	links   []Link
	indexes map[string]any

	persisted bool

	// backing is the last record synced with the store, the baseline Save
	// diffs against.
	backing *store.Record
}

func newDocument(t *Type, key string) *Document {
	return &Document{
		typ:     t,
		key:     key,
		values:  make(map[string]any),
		indexes: make(map[string]any),
	}
}

// Key returns the document key.
func (d *Document) Key() string {
	return d.key
}

// Type returns the document type.
func (d *Document) Type() *Type {
	return d.typ
}

// Persisted reports whether the document has a stored record.
func (d *Document) Persisted() bool {
	return d.persisted
}

func (d *Document) String() string {
	return d.typ.bucket + "/" + d.key
}

// Get returns the value of a field: the scalar value, a *Document for a
// single reference, or a []*Document copy for multi references and
// back-reference collections. Unset fields are nil.
func (d *Document) Get(name string) any {
	v := d.values[name]
	if docs, ok := v.([]*Document); ok {
		return append([]*Document(nil), docs...)
	}
	return v
}

// Ref returns the document held by a single reference field.
func (d *Document) Ref(name string) *Document {
	doc, _ := d.values[name].(*Document)
	return doc
}

// Refs returns the documents held by a multi reference field.
func (d *Document) Refs(name string) []*Document {
	docs, _ := d.values[name].([]*Document)
	return append([]*Document(nil), docs...)
}

// Collection returns the documents listed in a back-reference collection.
func (d *Document) Collection(name string) []*Document {
	return d.Refs(name)
}

// Set assigns a field. Scalars are checked against the property's value
// kind; references take a *Document (or []*Document when multi) whose type
// is the target type or descends from it. Back-reference collections are
// maintained by the engine and cannot be assigned.
func (d *Document) Set(name string, value any) error {
	p, ok := d.typ.props[name]
	if !ok {
		return fmt.Errorf("%w: %s has no field %q", ErrField, d.typ.bucket, name)
	}

	switch p.Kind {
	case KindScalar, KindUnique:
		v, err := p.check(value)
		if err != nil {
			return err
		}
		d.values[name] = v
		return nil
	case KindBackReference:
		return fmt.Errorf("%w: %s.%s is a back-reference collection", ErrField, d.typ.bucket, name)
	}

	if p.Multi {
		var docs []*Document
		switch v := value.(type) {
		case nil:
		case []*Document:
			docs = make([]*Document, 0, len(v))
			for _, doc := range v {
				if err := checkTarget(p, doc); err != nil {
					return err
				}
				if doc != nil {
					docs = append(docs, doc)
				}
			}
		default:
			return fmt.Errorf("%w: %s expects []*Document, got %T", ErrField, name, value)
		}
		d.values[name] = docs
		return nil
	}

	switch v := value.(type) {
	case nil:
		d.values[name] = nil
	case *Document:
		if err := checkTarget(p, v); err != nil {
			return err
		}
		if v == nil {
			d.values[name] = nil
		} else {
			d.values[name] = v
		}
	default:
		return fmt.Errorf("%w: %s expects *Document, got %T", ErrField, name, value)
	}
	return nil
}

func checkTarget(p *Property, doc *Document) error {
	if doc == nil || doc.typ.Is(p.Target) {
		return nil
	}
	return fmt.Errorf("%w: %s expects a %s document, got %s", ErrField, p.Name, p.Target, doc.typ.bucket)
}

// serialize encodes the current state as a record payload. Unset fields are
// written as nil; references are written as refOf strings.
func (d *Document) serialize() *store.Record {
	rec := &store.Record{
		Data:    make(map[string]any, len(d.typ.order)),
		Indexes: make(map[string]any, len(d.indexes)),
	}
	for _, name := range d.typ.order {
		p := d.typ.props[name]
		switch {
		case !p.holdsDocuments():
			rec.Data[name] = cloneScalar(d.values[name])
		case p.many():
			docs, _ := d.values[name].([]*Document)
			refs := make([]any, 0, len(docs))
			for _, doc := range docs {
				refs = append(refs, refOf(p, doc))
			}
			rec.Data[name] = refs
		default:
			if doc, ok := d.values[name].(*Document); ok && doc != nil {
				rec.Data[name] = refOf(p, doc)
			} else {
				rec.Data[name] = nil
			}
		}
	}
	rec.Links = d.storeLinks()
	for name, v := range d.indexes {
		rec.Indexes[name] = cloneScalar(v)
	}
	return rec
}

func cloneScalar(v any) any {
	if l, ok := v.([]any); ok {
		return append([]any(nil), l...)
	}
	return v
}

// populate replaces every field, link and index with the content of rec,
// which becomes the new backing record.
func (d *Document) populate(ctx context.Context, rec *store.Record) error {
	values := make(map[string]any, len(d.typ.order))
	for _, name := range d.typ.order {
		p := d.typ.props[name]
		raw := store.Normalize(rec.Value(name))

		if !p.holdsDocuments() {
			v, err := p.check(raw)
			if err != nil {
				return fmt.Errorf("decode %s: %w", d, err)
			}
			values[name] = v
			continue
		}

		if !p.many() {
			ref, _ := raw.(string)
			if ref == "" {
				values[name] = nil
				continue
			}
			doc, err := d.resolve(ctx, p, ref)
			if err != nil {
				return err
			}
			if doc != nil {
				values[name] = doc
			} else {
				values[name] = nil
			}
			continue
		}

		refs, _ := raw.([]any)
		docs := make([]*Document, 0, len(refs))
		for _, r := range refs {
			ref, ok := r.(string)
			if !ok || ref == "" {
				continue
			}
			doc, err := d.resolve(ctx, p, ref)
			if err != nil {
				return err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		values[name] = docs
	}

	links, err := d.resolveLinks(ctx, rec.Links)
	if err != nil {
		return err
	}

	d.values = values
	d.links = links
	d.indexes = make(map[string]any, len(rec.Indexes))
	for name, v := range rec.Indexes {
		d.indexes[name] = store.Normalize(v)
	}
	d.backing = rec.Clone()
	return nil
}

// refOf encodes a reference to doc held by p: the plain key for a document
// of the target type, bucket/key for a subtype. Keys never contain '/'.
func refOf(p *Property, doc *Document) string {
	if doc.typ.bucket == p.Target {
		return doc.key
	}
	return doc.typ.bucket + "/" + doc.key
}

// refType decodes a refOf string of p into the referenced type and key.
func (r *Registry) refType(p *Property, ref string) (*Type, string, error) {
	bucket, key, sub := strings.Cut(ref, "/")
	if !sub {
		bucket, key = p.Target, ref
	}
	t, err := r.TypeOf(bucket)
	if err != nil {
		return nil, "", err
	}
	if !t.Is(p.Target) {
		return nil, "", fmt.Errorf("%w: %s holds a %s reference, want %s", store.ErrInvalidRecord, p.Name, bucket, p.Target)
	}
	return t, key, nil
}

// resolve loads a referenced document through the identity cache. A
// reference whose record is gone, or whose subtype is not registered, is
// skipped unless references are strict.
func (d *Document) resolve(ctx context.Context, p *Property, ref string) (*Document, error) {
	t, key, err := d.typ.registry.refType(p, ref)
	if err == nil {
		var doc *Document
		if doc, err = t.Load(ctx, key, true); err == nil {
			return doc, nil
		}
	}
	dangling := errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownType)
	if dangling && !d.typ.registry.config.StrictReferences {
		d.typ.logger().Warn("skipping dangling reference",
			zap.String("document", d.String()),
			zap.String("field", p.Name),
			zap.String("target", ref))
		return nil, nil
	}
	return nil, fmt.Errorf("resolve %s.%s: %w", d, p.Name, err)
}

// Reload refetches the stored record and repopulates the document,
// discarding unsaved changes. A document that was never saved fails with
// ErrNotFound.
func (d *Document) Reload(ctx context.Context, opts ...store.ReadOption) error {
	if !d.persisted {
		return fmt.Errorf("%w: %s was never saved", ErrNotFound, d)
	}
	rec, err := d.typ.fetch(ctx, d.key, opts...)
	if err != nil {
		return err
	}
	return d.populate(ctx, rec)
}

// docsOf returns the documents held by field.
func (d *Document) docsOf(field string) []*Document {
	switch v := d.values[field].(type) {
	case *Document:
		if v != nil {
			return []*Document{v}
		}
	case []*Document:
		return append([]*Document(nil), v...)
	}
	return nil
}

// storedRefs returns the refOf strings of field in a stored record.
func storedRefs(rec *store.Record, field string) []string {
	switch v := store.Normalize(rec.Value(field)).(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []any:
		keys := make([]string, 0, len(v))
		for _, k := range v {
			if s, ok := k.(string); ok && s != "" {
				keys = append(keys, s)
			}
		}
		return keys
	}
	return nil
}

// same reports whether d and doc denote the same stored record.
func (d *Document) same(doc *Document) bool {
	return doc != nil && d.key == doc.key && d.typ.bucket == doc.typ.bucket
}

// lists reports whether field holds doc.
func (d *Document) lists(field string, doc *Document) bool {
	for _, held := range d.docsOf(field) {
		if held.same(doc) {
			return true
		}
	}
	return false
}

// attach appends doc to the collection field unless it is already listed.
// It reports whether the collection changed.
func (d *Document) attach(field string, doc *Document) bool {
	if d.lists(field, doc) {
		return false
	}
	docs, _ := d.values[field].([]*Document)
	d.values[field] = append(docs, doc)
	return true
}

// detach removes doc from field, clearing a single reference or dropping
// every matching entry of a list. It reports whether the field changed.
func (d *Document) detach(field string, doc *Document) bool {
	switch v := d.values[field].(type) {
	case *Document:
		if v != nil && v.same(doc) {
			d.values[field] = nil
			return true
		}
	case []*Document:
		kept := v[:0:0]
		for _, held := range v {
			if !held.same(doc) {
				kept = append(kept, held)
			}
		}
		if len(kept) != len(v) {
			d.values[field] = kept
			return true
		}
	}
	return false
}
