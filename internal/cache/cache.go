// Package cache memoises expensive data loaders across sessions and passes.
// Cached values are shared read-only data; they are never session state.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value   any
	expires time.Time
}

// Cache stores loader results by key until their TTL elapses. Concurrent
// misses for the same key share a single loader call.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	group   singleflight.Group
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an empty cache.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
		logger:  logger,
	}
}

// Load returns the cached value for key, calling fn on a miss. ttl <= 0
// keeps the value until Clear. Errors are returned and not cached.
func (c *Cache) Load(key string, ttl time.Duration, fn func() (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		start := c.now()
		v, err := fn()
		if err != nil {
			return nil, err
		}
		e := entry{value: v}
		if ttl > 0 {
			e.expires = c.now().Add(ttl)
		}
		c.mu.Lock()
		c.entries[key] = e
		c.mu.Unlock()
		c.logger.Debug("Cache filled", "key", key, "took", c.now().Sub(start))
		return v, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", key, err)
	}
	if shared {
		c.logger.Debug("Cache load shared", "key", key)
	}
	return v, nil
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Invalidate drops key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Load is the typed form of Cache.Load.
func Load[T any](c *Cache, key string, ttl time.Duration, fn func() (T, error)) (T, error) {
	v, err := c.Load(key, ttl, func() (any, error) { return fn() })
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("load %q: cached %T, want %T", key, v, zero)
	}
	return typed, nil
}
