package document

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/jacentio/docket/store"
)

// Link is a tagged pointer from a document to any other document.
type Link struct {
	Document *Document
	Tag      string
}

// AddLink links d to doc under tag. Adding an existing link is a no-op.
// Links are persisted by the next Save.
func (d *Document) AddLink(doc *Document, tag string) {
	if doc == nil {
		return
	}
	for _, l := range d.links {
		if sameLink(l, doc, tag) {
			return
		}
	}
	d.links = append(d.links, Link{Document: doc, Tag: tag})
}

// RemoveLink removes the link to doc under tag and reports whether it
// existed.
func (d *Document) RemoveLink(doc *Document, tag string) bool {
	for i, l := range d.links {
		if sameLink(l, doc, tag) {
			d.links = append(d.links[:i], d.links[i+1:]...)
			return true
		}
	}
	return false
}

// Links returns a copy of the document's links.
func (d *Document) Links() []Link {
	return append([]Link(nil), d.links...)
}

func sameLink(l Link, doc *Document, tag string) bool {
	return l.Tag == tag && l.Document.typ.bucket == doc.typ.bucket && l.Document.key == doc.key
}

// storeLinks encodes the links in a stable order.
func (d *Document) storeLinks() []store.Link {
	if len(d.links) == 0 {
		return nil
	}
	out := make([]store.Link, 0, len(d.links))
	for _, l := range d.links {
		out = append(out, store.Link{Bucket: l.Document.typ.bucket, Key: l.Document.key, Tag: l.Tag})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// resolveLinks loads the targets of stored links. Links to unknown buckets
// or missing records are skipped unless references are strict.
func (d *Document) resolveLinks(ctx context.Context, links []store.Link) ([]Link, error) {
	strict := d.typ.registry.config.StrictReferences
	out := make([]Link, 0, len(links))
	for _, l := range links {
		t, err := d.typ.registry.TypeOf(l.Bucket)
		if err == nil {
			var doc *Document
			if doc, err = t.Load(ctx, l.Key, true); err == nil {
				out = append(out, Link{Document: doc, Tag: l.Tag})
				continue
			}
		}
		if strict || !(errors.Is(err, ErrUnknownType) || errors.Is(err, ErrNotFound)) {
			return nil, fmt.Errorf("resolve link %s -> %s/%s: %w", d, l.Bucket, l.Key, err)
		}
		d.typ.logger().Warn("skipping dangling link",
			zap.String("document", d.String()),
			zap.String("target", l.Bucket+"/"+l.Key),
			zap.String("tag", l.Tag),
			zap.Error(err))
	}
	return out, nil
}

// SetIndex sets a secondary-index value persisted with the record.
func (d *Document) SetIndex(name string, value any) error {
	if name == "" {
		return fmt.Errorf("%w: index name is required", ErrField)
	}
	v := store.Normalize(value)
	if v == nil || !primitive(v) {
		return fmt.Errorf("%w: index %s cannot hold %T", ErrField, name, value)
	}
	d.indexes[name] = v
	return nil
}

// RemoveIndex removes a secondary-index value.
func (d *Document) RemoveIndex(name string) {
	delete(d.indexes, name)
}

// Index returns a secondary-index value.
func (d *Document) Index(name string) (any, bool) {
	v, ok := d.indexes[name]
	return v, ok
}

// Indexes returns a copy of the secondary-index values.
func (d *Document) Indexes() map[string]any {
	out := make(map[string]any, len(d.indexes))
	for k, v := range d.indexes {
		out[k] = v
	}
	return out
}
