package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/AltairaLabs/collabkit/internal/content"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
)

// RedisStore is a Store backed by Redis, grounded on the teacher's
// statestore Redis client usage (key-prefix helpers). Multi-key writes
// are issued as separate commands, not pipelined.
//
// storeOperationScript makes the "read current max version, compare,
// append" sequence atomic, per spec.md §9 Open Question (b): a
// non-atomic read-then-write would let concurrent writers race each
// other between the LLEN read and the RPUSH append, letting
// conflict-driven catch-up observe a torn version sequence.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing *redis.Client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func schemaKey(hash string) string          { return "collabkit:schema:" + hash }
func opsKey(typ, id string) string          { return fmt.Sprintf("collabkit:ops:%s:%s", typ, id) }
func snapKey(typ, id string, v int64) string {
	return fmt.Sprintf("collabkit:snap:%s:%s:%d", typ, id, v)
}
func snapIndexKey(typ, id string) string { return fmt.Sprintf("collabkit:snapidx:%s:%s", typ, id) }

const opKeysSetName = "collabkit:opkeys"

// StoreSchema is idempotent on schema.Hash using SETNX semantics.
func (s *RedisStore) StoreSchema(ctx context.Context, schema content.Schema) (content.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return content.Schema{}, err
	}

	key := schemaKey(schema.Hash)
	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return content.Schema{}, fmt.Errorf("store.Redis: StoreSchema: %w", err)
	}
	if ok {
		return schema, nil
	}

	existing, err := s.LoadSchema(ctx, schema.Hash)
	if err != nil {
		return content.Schema{}, err
	}
	if existing == nil {
		return content.Schema{}, collaberrors.NewAssert("store.Redis", "StoreSchema", "SetNX reported duplicate but key vanished")
	}
	return *existing, nil
}

// LoadSchema returns nil, nil when hash is unknown.
func (s *RedisStore) LoadSchema(ctx context.Context, hash string) (*content.Schema, error) {
	data, err := s.client.Get(ctx, schemaKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store.Redis: LoadSchema: %w", err)
	}
	var schema content.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// storeOperationScript atomically checks operation-key uniqueness and the
// next-version invariant before appending.
//
// KEYS[1] = ops list key, KEYS[2] = global opkeys set
// ARGV[1] = op.Key, ARGV[2] = op.Version, ARGV[3] = encoded operation
//
// Returns {status, currentMax}: status 0 = stored, 1 = duplicate key,
// 2 = version conflict.
var storeOperationScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[2], ARGV[1]) == 1 then
  return {1, 0}
end
local currentMax = redis.call('LLEN', KEYS[1])
if tonumber(ARGV[2]) ~= currentMax + 1 then
  return {2, currentMax}
end
redis.call('RPUSH', KEYS[1], ARGV[3])
redis.call('SADD', KEYS[2], ARGV[1])
return {0, currentMax + 1}
`)

// StoreOperation atomically appends op via storeOperationScript.
func (s *RedisStore) StoreOperation(ctx context.Context, op content.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}

	res, err := storeOperationScript.Run(ctx, s.client,
		[]string{opsKey(op.Type, op.ID), opKeysSetName},
		op.Key, op.Version, data,
	).Result()
	if err != nil {
		return fmt.Errorf("store.Redis: StoreOperation: %w", err)
	}

	fields, ok := res.([]any)
	if !ok || len(fields) != 2 {
		return collaberrors.NewAssert("store.Redis", "StoreOperation", "unexpected script result shape")
	}
	status := fields[0].(int64)
	currentMax := fields[1].(int64)

	switch status {
	case 0:
		return nil
	case 1:
		return collaberrors.NewAlreadyExists("store.Redis", "StoreOperation", "operationKey", op.Key, nil)
	default:
		return collaberrors.NewAlreadyExists("store.Redis", "StoreOperation", "version", op.Version, currentMax)
	}
}

// LoadOperations returns operations with versionStart <= version < versionEnd.
func (s *RedisStore) LoadOperations(ctx context.Context, typ, id string, versionStart, versionEnd int64) ([]content.Operation, error) {
	if versionEnd <= versionStart {
		return nil, nil
	}

	// list index i holds version i+1
	start := versionStart - 1
	if start < 0 {
		start = 0
	}
	stop := versionEnd - 2
	if stop < start {
		return nil, nil
	}

	raw, err := s.client.LRange(ctx, opsKey(typ, id), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("store.Redis: LoadOperations: %w", err)
	}

	ops := make([]content.Operation, 0, len(raw))
	for _, item := range raw {
		var op content.Operation
		if err := json.Unmarshal([]byte(item), &op); err != nil {
			return nil, err
		}
		if op.Version >= versionStart && op.Version < versionEnd {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

// StoreSnapshot is idempotent on (Type, ID, Version).
func (s *RedisStore) StoreSnapshot(ctx context.Context, snap content.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	key := snapKey(snap.Type, snap.ID, snap.Version)
	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("store.Redis: StoreSnapshot: %w", err)
	}
	if !ok {
		return collaberrors.NewAlreadyExists("store.Redis", "StoreSnapshot", "snapshot", snap.Version, snap.Version)
	}

	if err := s.client.ZAdd(ctx, snapIndexKey(snap.Type, snap.ID), redis.Z{
		Score:  float64(snap.Version),
		Member: strconv.FormatInt(snap.Version, 10),
	}).Err(); err != nil {
		return fmt.Errorf("store.Redis: StoreSnapshot: index: %w", err)
	}
	return nil
}

// LoadSnapshot returns the snapshot with the greatest version <= versionAtMost.
func (s *RedisStore) LoadSnapshot(ctx context.Context, typ, id string, versionAtMost int64) (*content.Snapshot, error) {
	members, err := s.client.ZRevRangeByScore(ctx, snapIndexKey(typ, id), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(versionAtMost, 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("store.Redis: LoadSnapshot: index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	version, err := strconv.ParseInt(members[0], 10, 64)
	if err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, snapKey(typ, id, version)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store.Redis: LoadSnapshot: %w", err)
	}

	var snap content.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
