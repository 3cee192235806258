package document_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jacentio/docket/document"
	"github.com/jacentio/docket/store"
)

var errInjected = errors.New("injected failure")

// schema is the set of types most tests run against.
type schema struct {
	reg   *document.Registry
	users *document.Type
	posts *document.Type
	tags  *document.Type
}

func defineSchema(t *testing.T, s store.Store, cfg document.Config) *schema {
	t.Helper()
	reg := document.NewRegistry(s, cfg, nil)
	users := reg.MustDefine("users", []document.Property{
		document.Unique("email", document.ValueString),
		document.Scalar("name", document.ValueString),
		document.Scalar("age", document.ValueInt),
	})
	tags := reg.MustDefine("tags", []document.Property{
		document.Scalar("label", document.ValueString),
	})
	posts := reg.MustDefine("posts", []document.Property{
		document.Scalar("title", document.ValueString),
		document.Reference("author", "users", "posts"),
		document.MultiReference("tags", "tags", "tagged"),
	})
	return &schema{reg: reg, users: users, posts: posts, tags: tags}
}

func mustNew(t *testing.T, typ *document.Type, key string, fields document.Fields) *document.Document {
	t.Helper()
	d, err := typ.New(context.Background(), fields, document.WithKey(key))
	if err != nil {
		t.Fatalf("New %s/%s: %v", typ.Bucket(), key, err)
	}
	return d
}

func mustSave(t *testing.T, d *document.Document) {
	t.Helper()
	if err := d.Save(context.Background()); err != nil {
		t.Fatalf("Save %s: %v", d, err)
	}
}

func keys(docs []*document.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Key())
	}
	return out
}

func storedValue(t *testing.T, s store.Store, bucket, key, field string) any {
	t.Helper()
	rec, err := s.Get(context.Background(), bucket, key)
	if err != nil {
		t.Fatalf("Get %s/%s: %v", bucket, key, err)
	}
	return rec.Value(field)
}

// plainStore hides any conditional put of the wrapped store.
type plainStore struct {
	store.Store
}

// faultyStore fails puts and deletes for selected buckets.
type faultyStore struct {
	*store.MemoryStore

	mu         sync.Mutex
	failPut    map[string]bool
	failDelete map[string]bool
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		MemoryStore: store.NewMemoryStore(),
		failPut:     make(map[string]bool),
		failDelete:  make(map[string]bool),
	}
}

func (f *faultyStore) fail(put, del string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if put != "" {
		f.failPut[put] = true
	}
	if del != "" {
		f.failDelete[del] = true
	}
}

// heal clears every injected failure.
func (f *faultyStore) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failPut = make(map[string]bool)
	f.failDelete = make(map[string]bool)
}

func (f *faultyStore) Put(ctx context.Context, bucket, key string, rec *store.Record, opts ...store.WriteOption) error {
	f.mu.Lock()
	fail := f.failPut[bucket]
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryStore.Put(ctx, bucket, key, rec, opts...)
}

func (f *faultyStore) Delete(ctx context.Context, bucket, key string, opts ...store.WriteOption) error {
	f.mu.Lock()
	fail := f.failDelete[bucket]
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryStore.Delete(ctx, bucket, key, opts...)
}

// recorder logs every write issued to the wrapped store.
type recorder struct {
	store.Store
	ops []string

	// beforePut runs once, ahead of the first Put.
	beforePut func()
}

func (r *recorder) Put(ctx context.Context, bucket, key string, rec *store.Record, opts ...store.WriteOption) error {
	if fn := r.beforePut; fn != nil {
		r.beforePut = nil
		fn()
	}
	r.ops = append(r.ops, "put "+bucket+"/"+key)
	return r.Store.Put(ctx, bucket, key, rec, opts...)
}

func (r *recorder) Delete(ctx context.Context, bucket, key string, opts ...store.WriteOption) error {
	r.ops = append(r.ops, "delete "+bucket+"/"+key)
	return r.Store.Delete(ctx, bucket, key, opts...)
}

// conditionalRecorder adds a recorded PutIfAbsent to recorder.
type conditionalRecorder struct {
	*recorder
	cp store.ConditionalPutter
}

func (r *conditionalRecorder) PutIfAbsent(ctx context.Context, bucket, key string, rec *store.Record, opts ...store.WriteOption) (bool, error) {
	r.ops = append(r.ops, "claim "+bucket+"/"+key)
	return r.cp.PutIfAbsent(ctx, bucket, key, rec, opts...)
}

func indexOf(ops []string, op string) int {
	for i, o := range ops {
		if o == op {
			return i
		}
	}
	return -1
}
