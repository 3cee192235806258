package document

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jacentio/docket/store"
)

// Delete removes the stored record and the unique entries the document
// owns, and drops the document from every collection and reference that
// lists it. Documents changed that way are saved afterwards; their failures
// are returned as a *CascadeError.
//
// Deleting an unsaved document is a no-op. The document stays usable and a
// later Save stores it again under the same key.
func (d *Document) Delete(ctx context.Context, opts ...store.WriteOption) error {
	if !d.persisted {
		return nil
	}
	t := d.typ

	// Edits are applied once the record is gone.
	var edits []collectionEdit
	for _, name := range t.order {
		p := t.props[name]
		switch {
		case p.Kind == KindBackReference:
			for _, doc := range d.docsOf(name) {
				edits = append(edits, collectionEdit{doc: doc, field: p.origin})
			}
		case p.Kind == KindReference && p.Collection != "":
			for _, doc := range d.docsOf(name) {
				edits = append(edits, collectionEdit{doc: doc, field: p.Collection})
			}
		}
	}

	t.cache.remove(d.key, d)
	if err := t.store().Delete(ctx, t.bucket, d.key, opts...); err != nil {
		if t.cache.get(d.key) == nil {
			t.cache.put(d.key, d)
		}
		return fmt.Errorf("delete %s: %w", d, err)
	}

	var releaseErr error
	for _, name := range t.uniques {
		if v := d.backing.Value(name); v != nil {
			releaseErr = multierr.Append(releaseErr, t.release(ctx, t.props[name], v, d.key, opts...))
		}
	}

	d.backing = nil
	d.persisted = false
	t.logger().Debug("deleted document", zap.String("bucket", t.bucket), zap.String("key", d.key))

	var dirty []*Document
	for _, e := range edits {
		if e.doc == d {
			continue
		}
		if e.doc.detach(e.field, d) {
			dirty = appendUnique(dirty, e.doc)
		}
	}
	return multierr.Combine(releaseErr, cascade(ctx, t.logger(), dirty, opts...))
}
