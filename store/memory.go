package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps every bucket in memory. Records are deep-copied on the
// way in and out so callers never share payload maps with the store.
// Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]map[string]*Record),
	}
}

func (m *MemoryStore) Get(ctx context.Context, bucket, key string, opts ...ReadOption) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Put(ctx context.Context, bucket, key string, rec *Record, opts ...WriteOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(bucket, key, rec)
	return nil
}

// PutIfAbsent implements ConditionalPutter.
func (m *MemoryStore) PutIfAbsent(ctx context.Context, bucket, key string, rec *Record, opts ...WriteOption) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket][key]; ok {
		return false, nil
	}
	m.put(bucket, key, rec)
	return true, nil
}

func (m *MemoryStore) put(bucket, key string, rec *Record) {
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string]*Record)
	}
	if rec == nil {
		rec = &Record{}
	}
	m.buckets[bucket][key] = rec.Clone()
}

func (m *MemoryStore) Delete(ctx context.Context, bucket, key string, opts ...WriteOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return nil
	}
	delete(b, key)
	if len(b) == 0 {
		delete(m.buckets, bucket)
	}
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, bucket, key string, opts ...ReadOption) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket][key]
	return ok, nil
}

// Keys returns the sorted keys held in bucket.
func (m *MemoryStore) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Buckets returns the sorted names of all non-empty buckets.
func (m *MemoryStore) Buckets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
