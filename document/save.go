package document

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jacentio/docket/store"
)

// uniqueChange is the reconciliation of one unique field.
type uniqueChange struct {
	prop  *Property
	value any
	state claimState

	// previous is the superseded value, released after commit.
	previous any
}

// collectionEdit adds or removes d from a back-reference collection.
type collectionEdit struct {
	doc   *Document
	field string
	add   bool
}

// Save writes the document.
//
// Unique values are reserved before the record is written, so a value
// owned by another key fails with ErrUniqueConstraint and nothing is
// stored. When the store implements store.ConditionalPutter the
// reservation is an atomic claim; otherwise it is a check, and two
// concurrent savers of the same new value can both succeed.
//
// Documents whose back-reference collections change are saved after the
// primary record. Their failures are returned as a *CascadeError; the
// primary write stays committed. Once the primary record is written the
// document is persisted even if a unique entry write or release fails;
// such errors are returned alongside and the next Save retries the entry.
func (d *Document) Save(ctx context.Context, opts ...store.WriteOption) error {
	t := d.typ
	rec := d.serialize()

	changes, err := d.reconcileUniques(ctx, rec, opts...)
	if err != nil {
		return err
	}

	edits, err := d.reconcileReferences(ctx)
	if err != nil {
		d.abort(ctx, changes)
		return err
	}

	if err := t.store().Put(ctx, t.bucket, d.key, rec, opts...); err != nil {
		d.abort(ctx, changes)
		return fmt.Errorf("put %s: %w", d, err)
	}

	d.persisted = true
	d.backing = rec.Clone()

	var entryErr error
	for _, c := range changes {
		if c.value == nil || c.state != claimPending {
			continue
		}
		if err := t.writeEntry(ctx, c.prop, c.value, d.key, opts...); err != nil {
			entryErr = multierr.Append(entryErr, err)
			// The next Save acquires the value again.
			delete(d.backing.Data, c.prop.Name)
		}
	}

	for _, c := range changes {
		if c.previous == nil {
			continue
		}
		entryErr = multierr.Append(entryErr, t.release(ctx, c.prop, c.previous, d.key, opts...))
	}

	if t.cache.get(d.key) != d {
		t.cache.put(d.key, d)
	}
	t.logger().Debug("saved document",
		zap.String("bucket", t.bucket),
		zap.String("key", d.key),
		zap.Int("cascade", len(edits)))

	var dirty []*Document
	for _, e := range edits {
		var changed bool
		if e.add {
			changed = e.doc.attach(e.field, d)
		} else {
			changed = e.doc.detach(e.field, d)
		}
		if changed {
			dirty = appendUnique(dirty, e.doc)
		}
	}
	return multierr.Combine(entryErr, cascade(ctx, t.logger(), dirty, opts...))
}

// reconcileUniques reserves every changed unique value of rec against the
// backing record. On failure every claim it wrote is released.
func (d *Document) reconcileUniques(ctx context.Context, rec *store.Record, opts ...store.WriteOption) ([]uniqueChange, error) {
	t := d.typ
	var changes []uniqueChange
	for _, name := range t.uniques {
		p := t.props[name]
		current := rec.Value(name)
		previous := d.backing.Value(name)

		switch {
		case current == nil && previous == nil:
			continue
		case current != nil && previous != nil && uniqueKey(current) == uniqueKey(previous):
			continue
		case current == nil:
			changes = append(changes, uniqueChange{prop: p, previous: previous})
			continue
		}

		state, err := t.acquire(ctx, p, current, d.key, opts...)
		if err != nil {
			d.abort(ctx, changes)
			return nil, err
		}
		changes = append(changes, uniqueChange{prop: p, value: current, state: state, previous: previous})
	}
	return changes, nil
}

// abort releases the claims written by a failed save.
func (d *Document) abort(ctx context.Context, changes []uniqueChange) {
	for _, c := range changes {
		if c.state != claimWritten || c.value == nil {
			continue
		}
		if err := d.typ.release(ctx, c.prop, c.value, d.key); err != nil {
			d.typ.logger().Warn("failed to release unique claim",
				zap.String("document", d.String()),
				zap.String("field", c.prop.Name),
				zap.Error(err))
		}
	}
}

// reconcileReferences plans the back-reference edits implied by the forward
// references that changed since the backing record. Previously referenced
// documents that no longer exist are skipped.
func (d *Document) reconcileReferences(ctx context.Context) ([]collectionEdit, error) {
	t := d.typ
	var edits []collectionEdit
	for _, name := range t.references {
		p := t.props[name]
		if p.Collection == "" {
			continue
		}

		current := make(map[string]bool)
		for _, doc := range d.docsOf(name) {
			current[refOf(p, doc)] = true
			if !doc.lists(p.Collection, d) {
				edits = append(edits, collectionEdit{doc: doc, field: p.Collection, add: true})
			}
		}

		for _, ref := range storedRefs(d.backing, name) {
			if current[ref] {
				continue
			}
			target, key, err := t.registry.refType(p, ref)
			if errors.Is(err, ErrUnknownType) {
				continue
			}
			if err != nil {
				return nil, err
			}
			doc, err := target.Load(ctx, key, true)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			edits = append(edits, collectionEdit{doc: doc, field: p.Collection})
		}
	}
	return edits, nil
}

// cascade saves every dirty document, collecting failures into a
// *CascadeError.
func cascade(ctx context.Context, logger *zap.Logger, dirty []*Document, opts ...store.WriteOption) error {
	var (
		refs []string
		errs error
	)
	for _, doc := range dirty {
		if err := doc.Save(ctx, opts...); err != nil {
			refs = append(refs, doc.String())
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", doc, err))
		}
	}
	if errs == nil {
		return nil
	}
	logger.Warn("cascade save failed", zap.Strings("documents", refs), zap.Error(errs))
	return &CascadeError{Refs: refs, Err: errs}
}

func appendUnique(docs []*Document, doc *Document) []*Document {
	for _, d := range docs {
		if d == doc {
			return docs
		}
	}
	return append(docs, doc)
}
