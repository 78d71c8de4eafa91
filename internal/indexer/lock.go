package indexer

import (
	"sync"
	"sync/atomic"
)

// IndexLock provides non-blocking lock semantics using atomic operations.
// Callers that must not queue behind a running build use it to fail fast.
type IndexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *IndexLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *IndexLock) Release() {
	l.state.Store(0)
}

// nameLocks hands out one mutex per index name. Entries are never removed;
// the set of names is bounded by projects times scenarios.
type nameLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newNameLocks() *nameLocks {
	return &nameLocks{locks: make(map[string]*sync.Mutex)}
}

// lock blocks until name is free and returns its unlock function
func (n *nameLocks) lock(name string) func() {
	n.mu.Lock()
	m, ok := n.locks[name]
	if !ok {
		m = &sync.Mutex{}
		n.locks[name] = m
	}
	n.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// systemLocks hands out one IndexLock per system
type systemLocks struct {
	mu    sync.Mutex
	locks map[string]*IndexLock
}

func (s *systemLocks) get(system string) *IndexLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*IndexLock)
	}
	l, ok := s.locks[system]
	if !ok {
		l = &IndexLock{}
		s.locks[system] = l
	}
	return l
}
