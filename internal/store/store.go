// Package store implements the ContentStore described in spec.md §4.3: the
// durable persistence of schemas, append-only versioned operations, and
// periodic snapshots. MemoryStore and RedisStore both satisfy Store so
// internal/backend and internal/cache are agnostic to which is wired in.
package store

import (
	"context"

	"github.com/AltairaLabs/collabkit/internal/content"
)

// Store is the durable persistence contract. All operations are safe for
// concurrent use.
type Store interface {
	// StoreSchema is idempotent on Hash: storing the same hash twice
	// returns the canonical stored schema both times, no error.
	StoreSchema(ctx context.Context, schema content.Schema) (content.Schema, error)

	// LoadSchema returns nil, nil when hash is unknown.
	LoadSchema(ctx context.Context, hash string) (*content.Schema, error)

	// StoreOperation atomically appends op. It fails with
	// *errors.AlreadyExists{EntityName: "version", Key: op.Version,
	// Value: currentMax} if op.Version != currentMax+1, or with
	// *errors.AlreadyExists{EntityName: "operationKey", Key: op.Key} on a
	// duplicate Key.
	StoreOperation(ctx context.Context, op content.Operation) error

	// LoadOperations returns operations with versionStart <= version <
	// versionEnd, ascending.
	LoadOperations(ctx context.Context, typ, id string, versionStart, versionEnd int64) ([]content.Operation, error)

	// StoreSnapshot is idempotent on (Type, ID, Version): a duplicate
	// store returns *errors.AlreadyExists, which is not fatal to callers.
	StoreSnapshot(ctx context.Context, snap content.Snapshot) error

	// LoadSnapshot returns the snapshot with the greatest version <=
	// versionAtMost, or nil, nil if none exists.
	LoadSnapshot(ctx context.Context, typ, id string, versionAtMost int64) (*content.Snapshot, error)
}
