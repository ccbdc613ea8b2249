// Package typecache holds the store manager's derived copy of bit type
// definitions. It is never the source of truth: the manager invalidates it on
// every type write and repopulates it from the store.
package typecache

import (
	"sync"

	"github.com/starford/bitkeep/internal/models"
)

// Cache maps type id to a resolved definition.
//
// Invalidate bumps a generation counter. Populate only installs definitions
// read under the current generation, so a read that raced a type write can
// not put stale definitions back.
type Cache struct {
	mu     sync.RWMutex
	gen    uint64
	loaded bool
	byID   map[string]models.BitTypeDefinition
	order  []string
}

// New returns an empty, unloaded cache.
func New() *Cache {
	return &Cache{byID: make(map[string]models.BitTypeDefinition)}
}

// Generation returns the generation a caller must pass to Populate.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Loaded reports whether the cache currently holds a full set of definitions.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Populate replaces the whole cache with defs if gen is still current and
// reports whether it did.
func (c *Cache) Populate(gen uint64, defs []models.BitTypeDefinition) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.byID = make(map[string]models.BitTypeDefinition, len(defs))
	c.order = make([]string, 0, len(defs))
	for _, d := range defs {
		c.byID[d.ID] = d.Clone()
		c.order = append(c.order, d.ID)
	}
	c.loaded = true
	return true
}

// Invalidate drops every definition and starts a new generation.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.loaded = false
	c.byID = make(map[string]models.BitTypeDefinition)
	c.order = nil
}

// Lookup returns a copy of the definition for id.
func (c *Cache) Lookup(id string) (models.BitTypeDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	if !ok {
		return models.BitTypeDefinition{}, false
	}
	return d.Clone(), true
}

// All returns copies of every definition in populate order, and whether the
// cache was loaded.
func (c *Cache) All() ([]models.BitTypeDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, false
	}
	out := make([]models.BitTypeDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Clone())
	}
	return out, true
}

// Index returns copies of every definition keyed by id, and whether the cache
// was loaded.
func (c *Cache) Index() (map[string]models.BitTypeDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, false
	}
	out := make(map[string]models.BitTypeDefinition, len(c.byID))
	for id, d := range c.byID {
		out[id] = d.Clone()
	}
	return out, true
}
