package registry

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry errors.
var (
	ErrNotRegistered = errors.New("not registered")
	ErrDuplicate     = errors.New("already registered")
	ErrEmptyName     = errors.New("empty name")
)

// Registry is a thread-safe set of named values: node implementations,
// routers, compiled workflows. Reads vastly outnumber writes, so it uses a
// sync.RWMutex.
type Registry[V any] struct {
	mu      sync.RWMutex
	kind    string
	entries map[string]V
}

// New creates an empty registry. kind names what it holds ("node",
// "workflow") and prefixes its errors.
func New[V any](kind string) *Registry[V] {
	return &Registry[V]{
		kind:    kind,
		entries: make(map[string]V),
	}
}

// Register adds value under name. Registering a name twice is an error.
func (r *Registry[V]) Register(name string, value V) error {
	if name == "" {
		return fmt.Errorf("%s: %w", r.kind, ErrEmptyName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%s %q: %w", r.kind, name, ErrDuplicate)
	}
	r.entries[name] = value
	return nil
}

// MustRegister is Register for package initialisation; it panics on error.
func (r *Registry[V]) MustRegister(name string, value V) {
	if err := r.Register(name, value); err != nil {
		panic("registry: " + err.Error())
	}
}

// Replace adds or overwrites the value under name.
func (r *Registry[V]) Replace(name string, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = value
}

// Get returns the value for name and whether it exists.
func (r *Registry[V]) Get(name string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[name]
	return v, ok
}

// Lookup returns the value for name or an error wrapping ErrNotRegistered
// that lists what is available.
func (r *Registry[V]) Lookup(name string) (V, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[name]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%s %q: %w (have %v)", r.kind, name, ErrNotRegistered,
			slices.Sorted(maps.Keys(r.entries)))
	}
	return v, nil
}

// Has reports whether name is registered.
func (r *Registry[V]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Delete removes name.
func (r *Registry[V]) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Names returns all registered names, sorted.
func (r *Registry[V]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.entries))
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range calls fn for each entry in name order until fn returns false.
//
// Range iterates over a snapshot, so fn may Register or Delete without
// affecting the current iteration.
func (r *Registry[V]) Range(fn func(name string, value V) bool) {
	r.mu.RLock()
	snapshot := maps.Clone(r.entries)
	r.mu.RUnlock()

	for _, name := range slices.Sorted(maps.Keys(snapshot)) {
		if !fn(name, snapshot[name]) {
			return
		}
	}
}

// GetOrCreate returns the value for name, creating it with factory if it
// doesn't exist. factory is called at most once per name, even under
// concurrent access.
func (r *Registry[V]) GetOrCreate(name string, factory func() V) V {
	r.mu.RLock()
	v, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		return v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.entries[name]; ok {
		return v
	}
	v = factory()
	r.entries[name] = v
	return v
}
