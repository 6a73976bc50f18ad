package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/AltairaLabs/collabkit/internal/content"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

// MemoryStore is an in-process Store backed by maps guarded by a single
// RWMutex, grounded on the teacher's in-memory state store: values are
// deep-copied on the way in and out via a JSON round-trip so callers can
// never mutate stored state through an aliased pointer.
type MemoryStore struct {
	mu sync.RWMutex

	schemas map[string]content.Schema // hash -> schema

	// operations holds the contiguous version sequence per (type,id),
	// index 0 == version 1.
	operations map[string][]content.Operation
	opKeys     map[string]struct{} // global operation Key uniqueness

	// snapshots holds all persisted snapshots per (type,id), keyed by
	// version.
	snapshots map[string]map[int64]content.Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		schemas:    make(map[string]content.Schema),
		operations: make(map[string][]content.Operation),
		opKeys:     make(map[string]struct{}),
		snapshots:  make(map[string]map[int64]content.Snapshot),
	}
}

func docKey(typ, id string) string { return typ + "\x00" + id }

func deepCopy[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// StoreSchema is idempotent on schema.Hash.
func (s *MemoryStore) StoreSchema(_ context.Context, schema content.Schema) (content.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.schemas[schema.Hash]; ok {
		return deepCopy(existing), nil
	}
	s.schemas[schema.Hash] = deepCopy(schema)
	return deepCopy(schema), nil
}

// LoadSchema returns nil, nil when hash is unknown.
func (s *MemoryStore) LoadSchema(_ context.Context, hash string) (*content.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schema, ok := s.schemas[hash]
	if !ok {
		return nil, nil
	}
	out := deepCopy(schema)
	return &out, nil
}

// StoreOperation appends op if it is the next version for (op.Type, op.ID).
func (s *MemoryStore) StoreOperation(_ context.Context, op content.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.opKeys[op.Key]; dup {
		return collaberrors.NewAlreadyExists("store.Memory", "StoreOperation", "operationKey", op.Key, nil)
	}

	key := docKey(op.Type, op.ID)
	ops := s.operations[key]
	currentMax := int64(len(ops))
	if op.Version != currentMax+1 {
		return collaberrors.NewAlreadyExists("store.Memory", "StoreOperation", "version", op.Version, currentMax)
	}

	s.operations[key] = append(ops, deepCopy(op))
	s.opKeys[op.Key] = struct{}{}
	return nil
}

// LoadOperations returns operations with versionStart <= version < versionEnd.
func (s *MemoryStore) LoadOperations(_ context.Context, typ, id string, versionStart, versionEnd int64) ([]content.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ops := s.operations[docKey(typ, id)]
	result := make([]content.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Version >= versionStart && op.Version < versionEnd {
			result = append(result, deepCopy(op))
		}
	}
	return result, nil
}

// StoreSnapshot is idempotent on (Type, ID, Version).
func (s *MemoryStore) StoreSnapshot(_ context.Context, snap content.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docKey(snap.Type, snap.ID)
	byVersion, ok := s.snapshots[key]
	if !ok {
		byVersion = make(map[int64]content.Snapshot)
		s.snapshots[key] = byVersion
	}
	if _, exists := byVersion[snap.Version]; exists {
		return collaberrors.NewAlreadyExists("store.Memory", "StoreSnapshot", "snapshot", snap.Version, snap.Version)
	}
	byVersion[snap.Version] = deepCopy(snap)
	return nil
}

// LoadSnapshot returns the snapshot with the greatest version <= versionAtMost.
func (s *MemoryStore) LoadSnapshot(_ context.Context, typ, id string, versionAtMost int64) (*content.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byVersion := s.snapshots[docKey(typ, id)]
	var best *content.Snapshot
	for v, snap := range byVersion {
		if v > versionAtMost {
			continue
		}
		if best == nil || v > best.Version {
			cp := deepCopy(snap)
			best = &cp
		}
	}
	return best, nil
}
