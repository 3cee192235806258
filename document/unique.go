package document

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jacentio/docket/store"
)

// Unique registry entries live in the property's unique bucket, keyed by
// the canonical form of the value, with the owning document as payload.
// Subtypes share the bucket of the type declaring the field, so the owner
// is a bucket and key pair:
//
//	_users_ul_email / "alice@example.com" -> {"bucket": "staff", "key": "<owner>"}

const (
	ownerBucketField = "bucket"
	ownerKeyField    = "key"
)

// Owner identifies the document holding a unique value.
type Owner struct {
	Bucket string
	Key    string
}

func (o Owner) String() string {
	return o.Bucket + "/" + o.Key
}

// claimState is the outcome of acquiring a unique value.
type claimState int

const (
	// claimOwned means the entry already names this document.
	claimOwned claimState = iota

	// claimWritten means a conditional put wrote the entry.
	claimWritten

	// claimPending means no entry exists and none was written; the entry is
	// written after the main record commits.
	claimPending
)

// uniqueKey is the entry key of a normalized value. Unique fields hold a
// single string, int, float or bool, so the text form is unambiguous.
func uniqueKey(v any) string {
	return fmt.Sprint(store.Normalize(v))
}

func entryRecord(o Owner) *store.Record {
	return &store.Record{Data: map[string]any{
		ownerBucketField: o.Bucket,
		ownerKeyField:    o.Key,
	}}
}

// self is the owner naming a document of t stored under key.
func (t *Type) self(key string) Owner {
	return Owner{Bucket: t.bucket, Key: key}
}

// owner returns the document owning value of p.
func (t *Type) owner(ctx context.Context, p *Property, value any) (Owner, bool, error) {
	rec, err := t.store().Get(ctx, p.uniqueBucket, uniqueKey(value))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Owner{}, false, nil
		}
		return Owner{}, false, fmt.Errorf("get %s/%s: %w", p.uniqueBucket, uniqueKey(value), err)
	}
	var o Owner
	o.Bucket, _ = rec.Value(ownerBucketField).(string)
	o.Key, _ = rec.Value(ownerKeyField).(string)
	return o, true, nil
}

// acquire reserves value of p for key. Backends implementing
// store.ConditionalPutter get an atomic claim; others only check, leaving
// the entry to be written after commit.
func (t *Type) acquire(ctx context.Context, p *Property, value any, key string, opts ...store.WriteOption) (claimState, error) {
	me := t.self(key)
	if cp, ok := t.store().(store.ConditionalPutter); ok {
		written, err := cp.PutIfAbsent(ctx, p.uniqueBucket, uniqueKey(value), entryRecord(me), opts...)
		if err != nil {
			return 0, fmt.Errorf("claim %s/%s: %w", p.uniqueBucket, uniqueKey(value), err)
		}
		if written {
			return claimWritten, nil
		}
	}

	owner, exists, err := t.owner(ctx, p, value)
	if err != nil {
		return 0, err
	}
	switch {
	case !exists:
		return claimPending, nil
	case owner == me:
		return claimOwned, nil
	default:
		return 0, fmt.Errorf("%w: %s.%s = %v is owned by %s", ErrUniqueConstraint, t.bucket, p.Name, value, owner)
	}
}

func (t *Type) writeEntry(ctx context.Context, p *Property, value any, key string, opts ...store.WriteOption) error {
	if err := t.store().Put(ctx, p.uniqueBucket, uniqueKey(value), entryRecord(t.self(key)), opts...); err != nil {
		return fmt.Errorf("put %s/%s: %w", p.uniqueBucket, uniqueKey(value), err)
	}
	return nil
}

// release deletes the entry for value of p if the document of t stored
// under key owns it. Entries owned by anyone else are left alone.
func (t *Type) release(ctx context.Context, p *Property, value any, key string, opts ...store.WriteOption) error {
	owner, exists, err := t.owner(ctx, p, value)
	if err != nil {
		return err
	}
	if !exists || owner != t.self(key) {
		return nil
	}
	if err := t.store().Delete(ctx, p.uniqueBucket, uniqueKey(value), opts...); err != nil {
		return fmt.Errorf("delete %s/%s: %w", p.uniqueBucket, uniqueKey(value), err)
	}
	return nil
}

func (t *Type) uniqueProperty(field string) (*Property, error) {
	p, ok := t.props[field]
	if !ok || p.Kind != KindUnique {
		return nil, fmt.Errorf("%w: %s.%s is not a unique field", ErrField, t.bucket, field)
	}
	return p, nil
}

// UniqueOwner returns the document holding value in a unique field. The
// owner may be a document of t or of a type sharing the field through
// inheritance.
func (t *Type) UniqueOwner(ctx context.Context, field string, value any) (Owner, bool, error) {
	p, err := t.uniqueProperty(field)
	if err != nil {
		return Owner{}, false, err
	}
	v, err := p.check(value)
	if err != nil {
		return Owner{}, false, err
	}
	return t.owner(ctx, p, v)
}

// GetByUnique loads the document holding value in a unique field, through
// the type of its owner.
func (t *Type) GetByUnique(ctx context.Context, field string, value any) (*Document, error) {
	owner, exists, err := t.UniqueOwner(ctx, field, value)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: no %s with %s = %v", ErrNotFound, t.bucket, field, value)
	}
	ot, err := t.registry.TypeOf(owner.Bucket)
	if err != nil {
		return nil, fmt.Errorf("owner of %s.%s = %v: %w", t.bucket, field, value, err)
	}
	return ot.Get(ctx, owner.Key)
}

// ReleaseOrphan deletes the entry for value in a unique field when it is
// owned by the document of t stored under owner and that document's record
// no longer holds value. Such entries are left behind by saves or deletes
// interrupted between writes. It reports whether an entry was deleted.
func (t *Type) ReleaseOrphan(ctx context.Context, field string, value any, owner string) (bool, error) {
	p, err := t.uniqueProperty(field)
	if err != nil {
		return false, err
	}
	v, err := p.check(value)
	if err != nil || v == nil {
		return false, err
	}

	current, exists, err := t.owner(ctx, p, v)
	if err != nil || !exists || current != t.self(owner) {
		return false, err
	}

	rec, err := t.store().Get(ctx, t.bucket, owner)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("get %s/%s: %w", t.bucket, owner, err)
	default:
		if held := rec.Value(field); held != nil && uniqueKey(held) == uniqueKey(v) {
			return false, nil
		}
	}

	if err := t.store().Delete(ctx, p.uniqueBucket, uniqueKey(v)); err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", p.uniqueBucket, uniqueKey(v), err)
	}
	t.logger().Info("released orphaned unique entry",
		zap.String("bucket", p.uniqueBucket),
		zap.String("value", uniqueKey(v)),
		zap.String("owner", current.String()))
	return true, nil
}
