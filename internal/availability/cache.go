package availability

import (
	"maps"
	"slices"
	"sync"

	"github.com/roach88/chunkgraph/internal/ir"
)

// Cache maps group signatures to available module ids across builds.
//
// Eviction is generational: Advance starts a new generation and drops every
// entry that was neither read nor written during the one before. A Cache is
// safe for concurrent use.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	generation uint64
}

type cacheEntry struct {
	modules    []ir.ModuleID
	generation uint64
}

// CacheEntry is the exported form of one cache slot.
type CacheEntry struct {
	Signature string        `json:"signature"`
	Modules   []ir.ModuleID `json:"modules"`
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// RestoreCache rebuilds a cache from exported entries.
func RestoreCache(entries []CacheEntry) *Cache {
	c := NewCache()
	for _, e := range entries {
		c.Put(e.Signature, e.Modules)
	}
	return c
}

// Get returns the cached ids for sig and marks the entry as used.
func (c *Cache) Get(sig string) ([]ir.ModuleID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sig]
	if !ok {
		return nil, false
	}
	e.generation = c.generation
	return e.modules, true
}

// Put stores ids under sig. The slice is copied.
func (c *Cache) Put(sig string, ids []ir.ModuleID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sig] = &cacheEntry{modules: slices.Clone(ids), generation: c.generation}
}

// Advance starts a new generation and returns how many entries it evicted.
func (c *Cache) Advance() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	evicted := 0
	for sig, e := range c.entries {
		if e.generation < c.generation {
			delete(c.entries, sig)
			evicted++
		}
	}
	c.generation++
	return evicted
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries exports the cache in signature order.
func (c *Cache) Entries() []CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CacheEntry, 0, len(c.entries))
	for _, sig := range slices.Sorted(maps.Keys(c.entries)) {
		out = append(out, CacheEntry{Signature: sig, Modules: slices.Clone(c.entries[sig].modules)})
	}
	return out
}
