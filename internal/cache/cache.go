// Package cache holds the application-level caches that memory relief can
// evict: an in-process map cache and a Redis-backed cache. Hosts register
// their caches in a Registry; the out-of-memory strategy clears each one
// independently.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Cache is anything memory relief can clear
type Cache interface {
	Name() string
	Clear(ctx context.Context) error
}

// Registry tracks registered caches by name
type Registry struct {
	mu     sync.RWMutex
	caches map[string]Cache
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]Cache)}
}

// Register adds a cache. Names must be unique.
func (r *Registry) Register(c Cache) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.caches[name]; exists {
		return fmt.Errorf("cache %q already registered", name)
	}
	r.caches[name] = c
	return nil
}

// Unregister removes a cache by name
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caches, name)
}

// List returns registered caches sorted by name
func (r *Registry) List() []Cache {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Cache, 0, len(r.caches))
	for _, c := range r.caches {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ClearResult reports what ClearAll did
type ClearResult struct {
	Cleared []string
	Failed  map[string]string
}

// ClearAll clears every cache. A failing (or panicking) cache does not stop
// the others.
func (r *Registry) ClearAll(ctx context.Context) ClearResult {
	res := ClearResult{Cleared: []string{}, Failed: make(map[string]string)}
	for _, c := range r.List() {
		if err := clearOne(ctx, c); err != nil {
			res.Failed[c.Name()] = err.Error()
			continue
		}
		res.Cleared = append(res.Cleared, c.Name())
	}
	return res
}

func clearOne(ctx context.Context, c Cache) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("clear panicked: %v", r)
		}
	}()
	return c.Clear(ctx)
}

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

// Memory is a concurrency-safe in-process cache with optional TTL
type Memory struct {
	name string
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory creates an in-process cache. ttl <= 0 disables expiry.
func NewMemory(name string, ttl time.Duration) *Memory {
	return &Memory{name: name, ttl: ttl, entries: make(map[string]memoryEntry)}
}

// Name returns the cache name
func (m *Memory) Name() string { return m.name }

// Get returns a value if present and not expired
func (m *Memory) Get(key string) (any, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Set stores a value
func (m *Memory) Set(key string, value any) {
	e := memoryEntry{value: value}
	if m.ttl > 0 {
		e.expiresAt = time.Now().Add(m.ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// Len returns the number of stored entries
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Clear drops every entry
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}
