package typeset

import (
	"sync"

	"github.com/google/uuid"
)

// instanceLocks hands out one mutex per instance id so concurrent builds of
// the same instance serialize for the span from directory preparation through
// artifact placement. Locks are never reclaimed; the set of instances built
// within one process lifetime is small.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *instanceLocks) acquire(id uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
