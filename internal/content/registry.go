package content

import (
	"sort"
	"sync"

	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

// Registry maps a document type name to its registered ContentType,
// mirroring the teacher's provider registry shape (register once at
// composition time, look up by name on every request thereafter).
type Registry struct {
	mu    sync.RWMutex
	types map[string]ContentType
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]ContentType)}
}

// Register adds a ContentType under name, replacing any prior registration
// for that name. Registration is expected at composition time, before any
// backend traffic is served.
func (r *Registry) Register(name string, ct ContentType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = ct
}

// Get returns the ContentType registered for name, or a *errors.TypeError
// if none is registered.
func (r *Registry) Get(name string) (ContentType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ct, ok := r.types[name]
	if !ok {
		return nil, collaberrors.NewTypeError("content.Registry", "Get", name)
	}
	return ct, nil
}

// List returns the registered type names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
