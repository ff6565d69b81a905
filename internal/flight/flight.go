// Package flight provides the single-flight guard for on-demand fetches.
// One portal sync per (resource kind, station, period) may be in flight at a
// time; a second caller is told so instead of spawning a duplicate browser
// or API session.
package flight

import (
	"errors"
	"fmt"
	"sync"
)

// ErrInFlight is returned by Acquire when the key is already being worked on
var ErrInFlight = errors.New("sync already in progress for this resource")

// Registry tracks in-flight coordination keys. The zero value is not usable;
// construct with New so the set exists. It is a handle passed into callers,
// not process-global state, so tests can run isolated.
type Registry struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates an empty registry
func New() *Registry {
	return &Registry{inFlight: make(map[string]struct{})}
}

// Key builds the coordination key for a resource kind, station and period
func Key(kind, cnpj, from, to string) string {
	return fmt.Sprintf("%s:%s:%s:%s", kind, cnpj, from, to)
}

// Acquire claims the key, or reports ErrInFlight when another caller holds
// it. The caller must Release on every path once done.
func (r *Registry) Acquire(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[key]; busy {
		return ErrInFlight
	}
	r.inFlight[key] = struct{}{}
	return nil
}

// Release frees the key for the next caller. Releasing a key that is not
// held is a no-op.
func (r *Registry) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, key)
}
