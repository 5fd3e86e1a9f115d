package voidmem

import "sync"

// mutexLock is the "serialised" concurrency mode from spec.md §5: a
// single mutex guards all public mutators and query snapshots.
type mutexLock struct {
	mu sync.Mutex
}

func (l *mutexLock) Lock()   { l.mu.Lock() }
func (l *mutexLock) Unlock() { l.mu.Unlock() }
