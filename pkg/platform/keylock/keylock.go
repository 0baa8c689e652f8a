// Package keylock provides per-key mutual exclusion. The engine serializes
// every mutating operation on a letter by its ID while letting unrelated
// letters proceed in parallel; a single global mutex would serialize the
// whole service and a mutex per store call would not cover the
// check-then-create window the routing dispatcher needs.
package keylock

import "sync"

// Map holds one mutex per active key. Mutexes are reference-counted and
// removed once the last holder releases, so the map stays bounded by the
// number of in-flight operations rather than the number of keys ever seen.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty lock map.
func New() *Map {
	return &Map{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for key, blocking until it is available.
func (m *Map) Lock(key string) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key. Unlocking a key that is not held is a
// programming error and panics, matching sync.Mutex semantics.
func (m *Map) Unlock(key string) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		m.mu.Unlock()
		panic("keylock: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()

	e.mu.Unlock()
}
