package store_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "errors"

	"github.com/AltairaLabs/collabkit/internal/content"
	"github.com/AltairaLabs/collabkit/internal/store"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

func TestMemoryStore_SchemaRoundTripIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	schema := content.Schema{Type: "counter", Hash: "h1", Data: json.RawMessage(`{}`)}
	stored, err := s.StoreSchema(ctx, schema)
	require.NoError(t, err)
	assert.Equal(t, "h1", stored.Hash)

	stored2, err := s.StoreSchema(ctx, schema)
	require.NoError(t, err)
	assert.Equal(t, stored.Hash, stored2.Hash)

	loaded, err := s.LoadSchema(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "counter", loaded.Type)
}

func TestMemoryStore_LoadSchemaUnknown(t *testing.T) {
	s := store.NewMemoryStore()
	loaded, err := s.LoadSchema(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryStore_StoreOperationSequencing(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	op1 := content.Operation{Key: "k1", Type: "counter", ID: "doc1", Version: 1}
	require.NoError(t, s.StoreOperation(ctx, op1))

	op2 := content.Operation{Key: "k2", Type: "counter", ID: "doc1", Version: 2}
	require.NoError(t, s.StoreOperation(ctx, op2))

	// version skip
	opSkip := content.Operation{Key: "k4", Type: "counter", ID: "doc1", Version: 4}
	err := s.StoreOperation(ctx, opSkip)
	require.Error(t, err)
	var ae *collaberrors.AlreadyExists
	require.True(t, stderrors.As(err, &ae))
	assert.Equal(t, "version", ae.EntityName)
	assert.Equal(t, int64(2), ae.Value)

	// duplicate key
	dup := content.Operation{Key: "k1", Type: "counter", ID: "doc1", Version: 3}
	err = s.StoreOperation(ctx, dup)
	require.Error(t, err)
	require.True(t, stderrors.As(err, &ae))
	assert.Equal(t, "operationKey", ae.EntityName)
}

func TestMemoryStore_LoadOperationsRange(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	for v := int64(1); v <= 6; v++ {
		require.NoError(t, s.StoreOperation(ctx, content.Operation{Key: "k" + string(rune('0'+v)), Type: "counter", ID: "doc1", Version: v}))
	}

	ops, err := s.LoadOperations(ctx, "counter", "doc1", 2, 5)
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, int64(2), ops[0].Version)
	assert.Equal(t, int64(4), ops[2].Version)
}

func TestMemoryStore_SnapshotIdempotentAndLatestAtMost(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	require.NoError(t, s.StoreSnapshot(ctx, content.Snapshot{Type: "counter", ID: "doc1", Version: 0}))
	require.NoError(t, s.StoreSnapshot(ctx, content.Snapshot{Type: "counter", ID: "doc1", Version: 4}))
	require.NoError(t, s.StoreSnapshot(ctx, content.Snapshot{Type: "counter", ID: "doc1", Version: 6}))

	err := s.StoreSnapshot(ctx, content.Snapshot{Type: "counter", ID: "doc1", Version: 4})
	require.Error(t, err)
	var ae *collaberrors.AlreadyExists
	require.True(t, stderrors.As(err, &ae))

	snap, err := s.LoadSnapshot(ctx, "counter", "doc1", 5)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(4), snap.Version)
}
