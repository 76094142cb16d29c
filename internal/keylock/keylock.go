// Package keylock provides mutual exclusion scoped to a comparable key.
//
// Locks for different keys never contend with each other. Entries are
// reference counted and removed once no goroutine holds or waits on them, so
// the table only grows with the number of keys in active use.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker is a table of mutexes indexed by key. The zero value is not usable;
// call New.
type Locker[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

func New[K comparable]() *Locker[K] {
	return &Locker[K]{entries: make(map[K]*entry)}
}

// Lock blocks until the lock for key is held and returns its release func.
func (l *Locker[K]) Lock(key K) (unlock func()) {
	l.mu.Lock()
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

// Do runs fn while holding the lock for key.
func (l *Locker[K]) Do(key K, fn func()) {
	unlock := l.Lock(key)
	defer unlock()
	fn()
}

// Len returns the number of keys currently held or awaited.
func (l *Locker[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
