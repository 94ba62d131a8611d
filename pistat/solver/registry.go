package solver

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownBackend = errors.New("no transfer capability registered for backend")

// Registry maps backend names to their Transferable capability.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Transferable
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Transferable)}
}

// Register installs t for backend, replacing any earlier registration.
func (r *Registry) Register(backend string, t Transferable) error {
	if backend == "" {
		return fmt.Errorf("backend name cannot be empty")
	}
	if t == nil {
		return fmt.Errorf("nil capability for backend %q", backend)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[backend] = t
	return nil
}

// Lookup returns the capability registered for backend.
func (r *Registry) Lookup(backend string) (Transferable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.backends[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	return t, nil
}

// For returns the capability matching the backend of s.
func (r *Registry) For(s Instance) (Transferable, error) {
	return r.Lookup(s.Backend())
}

// Backends lists the registered backend names in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
