package workflow

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex is a per-key mutual exclusion lock providing the
// per-production exclusion: concurrent callers for different keys never
// block each other, while callers for the same key serialize. Entries are
// reference counted and removed once unused so the map never grows
// unbounded with the lifetime of a production.
type keyedMutex struct {
	mu sync.Mutex
	m  map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{m: make(map[uuid.UUID]*lockEntry)}
}

// Lock blocks until the exclusion for id is acquired and returns the
// function that releases it. Lock acquisition is non-fair.
func (k *keyedMutex) Lock(id uuid.UUID) func() {
	k.mu.Lock()
	e, ok := k.m[id]
	if !ok {
		e = &lockEntry{}
		k.m[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.m, id)
		}
		k.mu.Unlock()
	}
}
