// Package syncutil provides small concurrency primitives shared across services.
package syncutil

import (
	"errors"
	"sync"
)

// ErrInFlight is returned when an operation is already running for a key.
var ErrInFlight = errors.New("syncutil: operation already in flight for this key")

// InFlight is a per-key reentrancy guard. At most one operation may hold a
// key at a time; a second Begin for the same key fails fast instead of
// blocking. Different keys are fully independent, so operations on distinct
// contracts proceed concurrently.
//
// This is deliberately not a lock pool: callers that lose the race must
// surface the conflict to the user, never queue behind the winner.
type InFlight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewInFlight creates an empty in-flight guard.
func NewInFlight() *InFlight {
	return &InFlight{keys: make(map[string]struct{})}
}

// Begin marks key as in flight. It returns a release function on success,
// or ErrInFlight if another operation already holds the key. The release
// function is idempotent.
func (f *InFlight) Begin(key string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.keys[key]; busy {
		return nil, ErrInFlight
	}
	f.keys[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.keys, key)
			f.mu.Unlock()
		})
	}
	return release, nil
}

// Busy reports whether an operation currently holds the key.
func (f *InFlight) Busy(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.keys[key]
	return busy
}

// Len returns the number of keys currently in flight.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}
