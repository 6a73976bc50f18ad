// Package errors provides the error taxonomy used across collabkit: a
// small set of structured kinds that carry enough context for callers to
// branch on (errors.As) and enough detail for operators to act on (Error()).
package errors

import "fmt"

// Base carries context shared by every kind: which component raised the
// error, what operation it was performing, and the underlying cause.
type Base struct {
	Component string
	Operation string
	Cause     error
}

func (b *Base) Error() string {
	msg := fmt.Sprintf("[%s] %s", b.Component, b.Operation)
	if b.Cause != nil {
		msg += ": " + b.Cause.Error()
	}
	return msg
}

func (b *Base) Unwrap() error { return b.Cause }

// InvalidEntity is returned when a named entity fails schema or structural
// validation. Fatal to the offending request.
type InvalidEntity struct {
	*Base
	EntityName string
	Entity     any
	Key        string // dotted path into Entity where validation failed
}

// NewInvalidEntity builds an InvalidEntity error.
func NewInvalidEntity(component, operation, entityName string, entity any, key string) *InvalidEntity {
	return &InvalidEntity{
		Base:       &Base{Component: component, Operation: operation},
		EntityName: entityName,
		Entity:     entity,
		Key:        key,
	}
}

func (e *InvalidEntity) Error() string {
	return fmt.Sprintf("%s: invalid %s at %q", e.Base.Error(), e.EntityName, e.Key)
}

// AlreadyExists is returned on a duplicate-key insert. Informational for
// conflict-driven catch-up; surfaced to the submitter otherwise.
type AlreadyExists struct {
	*Base
	EntityName string
	Key        any
	Value      any
}

// NewAlreadyExists builds an AlreadyExists error.
func NewAlreadyExists(component, operation, entityName string, key, value any) *AlreadyExists {
	return &AlreadyExists{
		Base:       &Base{Component: component, Operation: operation},
		EntityName: entityName,
		Key:        key,
		Value:      value,
	}
}

func (e *AlreadyExists) Error() string {
	return fmt.Sprintf("%s: %s already exists (key=%v, value=%v)", e.Base.Error(), e.EntityName, e.Key, e.Value)
}

// NotFound is returned for a missing schema, document, or id.
type NotFound struct {
	*Base
	EntityName string
	Key        any
}

// NewNotFound builds a NotFound error.
func NewNotFound(component, operation, entityName string, key any) *NotFound {
	return &NotFound{
		Base:       &Base{Component: component, Operation: operation},
		EntityName: entityName,
		Key:        key,
	}
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s: %s not found (key=%v)", e.Base.Error(), e.EntityName, e.Key)
}

// EntityTooLarge is returned when a size cap is exceeded.
type EntityTooLarge struct {
	*Base
	EntityName string
	Size       int
	Limit      int
}

// NewEntityTooLarge builds an EntityTooLarge error.
func NewEntityTooLarge(component, operation, entityName string, size, limit int) *EntityTooLarge {
	return &EntityTooLarge{
		Base:       &Base{Component: component, Operation: operation},
		EntityName: entityName,
		Size:       size,
		Limit:      limit,
	}
}

func (e *EntityTooLarge) Error() string {
	return fmt.Sprintf("%s: %s size %d exceeds limit %d", e.Base.Error(), e.EntityName, e.Size, e.Limit)
}

// TypeError is returned for an unsupported or unregistered content type.
type TypeError struct {
	*Base
	Type string
}

// NewTypeError builds a TypeError error.
func NewTypeError(component, operation, typeName string) *TypeError {
	return &TypeError{
		Base: &Base{Component: component, Operation: operation},
		Type: typeName,
	}
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: unsupported content type %q", e.Base.Error(), e.Type)
}

// Auth is returned for authorisation failures. collabkit never makes the
// policy decision itself (§1 Non-goals); this kind exists so the RPC layer
// can surface an external collaborator's rejection uniformly.
type Auth struct {
	*Base
	Reason string
}

// NewAuth builds an Auth error.
func NewAuth(component, operation, reason string) *Auth {
	return &Auth{
		Base:   &Base{Component: component, Operation: operation},
		Reason: reason,
	}
}

func (e *Auth) Error() string {
	return fmt.Sprintf("%s: not authorized: %s", e.Base.Error(), e.Reason)
}

// Disconnected is returned to a caller whose request was outstanding when
// the transport dropped.
type Disconnected struct {
	*Base
}

// NewDisconnected builds a Disconnected error.
func NewDisconnected(component, operation string) *Disconnected {
	return &Disconnected{Base: &Base{Component: component, Operation: operation}}
}

func (e *Disconnected) Error() string {
	return fmt.Sprintf("%s: disconnected", e.Base.Error())
}

// Assert signals an internal invariant violation. Always a bug: surfaced to
// the caller and logged at error level by whoever catches it.
type Assert struct {
	*Base
	Invariant string
}

// NewAssert builds an Assert error.
func NewAssert(component, operation, invariant string) *Assert {
	return &Assert{
		Base:      &Base{Component: component, Operation: operation},
		Invariant: invariant,
	}
}

func (e *Assert) Error() string {
	return fmt.Sprintf("%s: assertion failed: %s", e.Base.Error(), e.Invariant)
}
