package schema

import (
	"context"
	"sync"
)

// Loader fetches a schema from wherever it lives (Tinybird, ClickHouse, a file).
type Loader func(ctx context.Context) (TableSchema, error)

// Cache memoizes the result of a Loader until Invalidate is called. It is
// passed explicitly to whoever needs the schema; there is no package-level
// instance.
type Cache struct {
	load Loader

	mu    sync.Mutex
	value *TableSchema
}

// NewCache wraps load in a Cache.
func NewCache(load Loader) *Cache {
	return &Cache{load: load}
}

// Static returns a Cache that always yields s.
func Static(s TableSchema) *Cache {
	return &Cache{value: &s}
}

// Get returns the cached schema, loading it on first use. Failed loads are
// not cached.
func (c *Cache) Get(ctx context.Context) (TableSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value != nil {
		return *c.value, nil
	}
	s, err := c.load(ctx)
	if err != nil {
		return TableSchema{}, err
	}
	s = Normalize(s)
	c.value = &s
	return s, nil
}

// Invalidate drops the cached value; the next Get reloads. A Static cache has
// no loader and keeps its value.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.load != nil {
		c.value = nil
	}
}
