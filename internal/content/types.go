// Package content holds the core document-content data model (Schema,
// Operation, Snapshot), the stable schema-hashing primitive, and the
// pluggable ContentType registry that folds operations into snapshots.
package content

import (
	"encoding/json"
	"time"
)

// Schema describes a document type's valid content. Hash is a stable
// digest over (type, data); schemas are immutable once stored.
type Schema struct {
	Type string          `json:"type"`
	Hash string          `json:"hash"`
	Data json.RawMessage `json:"data"`
	Meta map[string]any  `json:"meta,omitempty"`
}

// OperationMeta carries the provenance of an Operation.
type OperationMeta struct {
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
	Time      time.Time `json:"time"`
}

// Operation is an atomic, version-bearing mutation of one document.
// For a given (Type, ID), versions form a gapless sequence starting at 1.
type Operation struct {
	Key     string          `json:"key"` // globally unique
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Schema  string          `json:"schema"` // hash of the Schema in force
	Data    json.RawMessage `json:"data"`
	Meta    OperationMeta   `json:"meta"`
}

// Snapshot is materialised document state at a specific version. Version 0
// is the empty snapshot that precedes any operation.
type Snapshot struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Version int64           `json:"version"`
	Schema  string          `json:"schema"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta,omitempty"`
}

// Empty returns the version-0 empty snapshot for (typ, id), per spec.md §8
// boundary behaviour: version 0, schema "".
func Empty(typ, id string) Snapshot {
	return Snapshot{Type: typ, ID: id, Version: 0, Schema: "", Data: nil}
}

// MaxVersion is the "latest" sentinel used by streamOperations/getSnapshot
// version ranges, per spec.md §4.5.
const MaxVersion int64 = 1<<31 - 1
