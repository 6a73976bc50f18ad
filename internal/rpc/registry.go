package rpc

import (
	"encoding/json"
	"fmt"
	"sync"

	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

// HandlerFunc implements one request name on a service. args mirrors the
// REQUEST frame's data array, one element per call argument.
type HandlerFunc func(args []json.RawMessage) (any, error)

// Service is a named set of request handlers, the server-side half of
// spec.md §4.1's "service registration". A request name resolves to
// either a value handler or a stream handler, never both.
type Service struct {
	Name           string
	Handlers       map[string]HandlerFunc
	StreamHandlers map[string]StreamHandlerFunc
}

// intrinsicMembers are proxy member names a request name must not shadow
// (spec.md §4.1 "Proxy registration rejects request names that shadow
// intrinsic members").
var intrinsicMembers = map[string]struct{}{
	"on":     {},
	"off":    {},
	"close":  {},
	"string": {},
}

// ServiceRegistry holds the services a Conn's peer may call into.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]*Service
	destroyed bool
}

// NewServiceRegistry constructs an empty registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]*Service)}
}

// Register adds a service. Rejects name collisions and registration after
// Destroy.
func (r *ServiceRegistry) Register(svc *Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return collaberrors.NewDisconnected("rpc", "Register")
	}
	if _, exists := r.services[svc.Name]; exists {
		return collaberrors.NewInvalidEntity("rpc", "Register", "Service", svc.Name, "name")
	}
	for name := range svc.StreamHandlers {
		if _, dup := svc.Handlers[name]; dup {
			return collaberrors.NewInvalidEntity("rpc", "Register", "requestName", name, "name")
		}
	}
	r.services[svc.Name] = svc
	return nil
}

// RegisterProxyNames validates a client-side proxy's declared request names
// against the intrinsic-member shadow list (spec.md §4.1).
func RegisterProxyNames(names []string) error {
	for _, n := range names {
		if _, shadow := intrinsicMembers[n]; shadow {
			return collaberrors.NewInvalidEntity("rpc", "RegisterProxyNames", "requestName", n, "name")
		}
	}
	return nil
}

// Destroy marks the registry terminal; subsequent Register calls fail.
func (r *ServiceRegistry) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
}

// lookupEither resolves name to a value handler or a stream handler,
// exactly one of which will be non-nil on success.
func (r *ServiceRegistry) lookupEither(service, name string) (HandlerFunc, StreamHandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[service]
	if !ok {
		return nil, nil, collaberrors.NewNotFound("rpc", "dispatch", "service", service)
	}
	if h, ok := svc.Handlers[name]; ok {
		return h, nil, nil
	}
	if sh, ok := svc.StreamHandlers[name]; ok {
		return nil, sh, nil
	}
	return nil, nil, collaberrors.NewNotFound("rpc", "dispatch", "requestName", fmt.Sprintf("%s.%s", service, name))
}
