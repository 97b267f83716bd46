// Package keylock serializes work on shared external resources by key.
//
// Two callers locking the same key ("port:8080", "service:ollama") run one
// after the other; different keys proceed in parallel. Entries are reference
// counted and removed when the last holder unlocks.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker is a keyed mutex. The zero value is ready to use.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a Locker
func New() *Locker {
	return &Locker{}
}

// Lock blocks until key is free and returns the matching unlock function
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}

// Do runs fn while holding key
func (l *Locker) Do(key string, fn func()) {
	unlock := l.Lock(key)
	defer unlock()
	fn()
}

// Held returns the number of keys currently locked or awaited
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
