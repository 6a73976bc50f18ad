// Package counter provides the additive-integer reference ContentType used
// by collabkit's own test suite and registered by cmd/collabd. A counter
// document's Data is a JSON integer; each operation's Data is a delta
// added to the prior snapshot's value.
package counter

import (
	"encoding/json"
	"sync"

	"github.com/AltairaLabs/collabkit/internal/content"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

// ContentType implements content.ContentType for additive integer content.
// A Schema's Data is unused (counters have no configurable shape) but is
// still validated as well-formed JSON so the hashing/registration path is
// exercised like any other content type.
type ContentType struct {
	mu      sync.RWMutex
	schemas map[string]struct{}
}

// New returns a ready-to-register counter ContentType.
func New() *ContentType {
	return &ContentType{schemas: make(map[string]struct{})}
}

// ValidateSchema requires Data to be valid JSON (any shape).
func (c *ContentType) ValidateSchema(s content.Schema) (content.Schema, error) {
	if len(s.Data) > 0 && !json.Valid(s.Data) {
		return content.Schema{}, collaberrors.NewInvalidEntity("contenttype.counter", "ValidateSchema", "schema", s, "data")
	}
	return s, nil
}

// HasSchema reports whether hash has been registered.
func (c *ContentType) HasSchema(hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.schemas[hash]
	return ok
}

// RegisterSchema records hash as known. Idempotent.
func (c *ContentType) RegisterSchema(s content.Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas[s.Hash] = struct{}{}
	return nil
}

// Apply adds op's delta to prior's value, except across a schema change
// where Data carries over unchanged per spec.md §9.
func (c *ContentType) Apply(prior content.Snapshot, op content.Operation) (content.Snapshot, error) {
	if snap, ok := content.ApplySchemaChangeCarryOver(prior, op); ok {
		return snap, nil
	}

	if op.Version != prior.Version+1 {
		return content.Snapshot{}, collaberrors.NewAssert("contenttype.counter", "Apply",
			"op.version must equal priorSnapshot.version + 1")
	}
	if prior.Version != 0 && op.Type != prior.Type {
		return content.Snapshot{}, collaberrors.NewAssert("contenttype.counter", "Apply", "op.type must equal priorSnapshot.type")
	}
	if prior.Version != 0 && op.ID != prior.ID {
		return content.Snapshot{}, collaberrors.NewAssert("contenttype.counter", "Apply", "op.id must equal priorSnapshot.id")
	}

	var priorValue int64
	if len(prior.Data) > 0 {
		if err := json.Unmarshal(prior.Data, &priorValue); err != nil {
			return content.Snapshot{}, collaberrors.NewInvalidEntity("contenttype.counter", "Apply", "snapshot", prior, "data")
		}
	}

	var delta int64
	if len(op.Data) > 0 {
		if err := json.Unmarshal(op.Data, &delta); err != nil {
			return content.Snapshot{}, collaberrors.NewInvalidEntity("contenttype.counter", "Apply", "operation", op, "data")
		}
	}

	newValue, err := json.Marshal(priorValue + delta)
	if err != nil {
		return content.Snapshot{}, err
	}

	return content.Snapshot{
		Type:    op.Type,
		ID:      op.ID,
		Version: op.Version,
		Schema:  op.Schema,
		Data:    newValue,
		Meta:    prior.Meta,
	}, nil
}
