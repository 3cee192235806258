package document

import (
	"runtime"
	"sync"
	"weak"
)

// cache maps keys to live documents of one type without keeping them alive.
// Entries vanish once the document is collected. Cleanups run on the
// runtime's cleanup goroutine, hence the mutex.
type cache struct {
	mu      sync.Mutex
	entries map[string]weak.Pointer[Document]
}

type cacheEntry struct {
	key string
	ptr weak.Pointer[Document]
}

func newCache() *cache {
	return &cache{entries: make(map[string]weak.Pointer[Document])}
}

// get returns the live document cached under key, or nil.
func (c *cache) get(key string) *Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	ptr, ok := c.entries[key]
	if !ok {
		return nil
	}
	d := ptr.Value()
	if d == nil {
		delete(c.entries, key)
	}
	return d
}

// put caches d under key, replacing any previous entry.
func (c *cache) put(key string, d *Document) {
	ptr := weak.Make(d)
	c.mu.Lock()
	c.entries[key] = ptr
	c.mu.Unlock()
	runtime.AddCleanup(d, c.evict, cacheEntry{key: key, ptr: ptr})
}

// remove drops the entry for key if it still refers to d.
func (c *cache) remove(key string, d *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ptr, ok := c.entries[key]
	if !ok {
		return
	}
	if cur := ptr.Value(); cur == nil || cur == d {
		delete(c.entries, key)
	}
}

// evict runs after a cached document is collected. A newer entry under the
// same key is left alone.
func (c *cache) evict(e cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.entries[e.key]; ok && cur == e.ptr {
		delete(c.entries, e.key)
	}
}

// len returns the number of live entries.
func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key, ptr := range c.entries {
		if ptr.Value() == nil {
			delete(c.entries, key)
			continue
		}
		n++
	}
	return n
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]weak.Pointer[Document])
}
