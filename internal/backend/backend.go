// Package backend implements the Content Backend of spec.md §4.6: the
// orchestrator composing the ContentType Registry, ContentStore, Document
// Cache, and PubSub Bus into the public contract the RPC services bind to.
package backend

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/collabkit/internal/cache"
	"github.com/AltairaLabs/collabkit/internal/content"
	"github.com/AltairaLabs/collabkit/internal/pubsub"
	"github.com/AltairaLabs/collabkit/internal/store"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
	"github.com/AltairaLabs/collabkit/pkg/logger"
)

var tracer = otel.Tracer("github.com/AltairaLabs/collabkit/internal/backend")

// Options configures a Backend. Grounded on server/a2a/server.go's
// options-pattern Server constructor.
type Options struct {
	MaxSchemaSize    int
	MaxOperationSize int
	MaxSnapshotSize  int
	CacheOptions     cache.Options
	OnWarning        func(error)
	OnError          func(error)
}

func (o *Options) setDefaults() {
	if o.MaxSchemaSize <= 0 {
		o.MaxSchemaSize = 1 << 20
	}
	if o.MaxOperationSize <= 0 {
		o.MaxOperationSize = 1 << 20
	}
	if o.MaxSnapshotSize <= 0 {
		o.MaxSnapshotSize = 8 << 20
	}
	if o.OnWarning == nil {
		o.OnWarning = func(err error) { logger.Warn("backend: warning", "error", err) }
	}
	if o.OnError == nil {
		o.OnError = func(err error) { logger.Error("backend: error", "error", err) }
	}
}

// Backend is the Content Backend: registerSchema, getSchema, getSnapshot,
// submitOperation, streamOperations, composing Registry + Store + Cache +
// Bus per spec.md §4.6.
type Backend struct {
	registry *content.Registry
	store    store.Store
	bus      pubsub.Bus
	cache    *cache.Cache
	opts     Options
}

// New constructs a Backend. The Cache is created internally, wiring st,
// bus, and registry together, so callers never touch the Cache directly.
func New(st store.Store, bus pubsub.Bus, registry *content.Registry, opts Options) *Backend {
	opts.setDefaults()
	if opts.CacheOptions.OnWarning == nil {
		opts.CacheOptions.OnWarning = opts.OnWarning
	}
	opts.CacheOptions.MaxSnapshotSize = opts.MaxSnapshotSize
	c := cache.New(st, bus, registry, opts.CacheOptions)
	return &Backend{
		registry: registry,
		store:    st,
		bus:      bus,
		cache:    c,
		opts:     opts,
	}
}

// Close stops the Cache's TTL sweep and disconnects all live subscribers,
// mirroring the teacher's Server.Shutdown lifecycle.
func (b *Backend) Close() {
	b.cache.Close()
}

// RegisterSchema validates the schema's size cap, dispatches to its
// ContentType for structural validation, then stores it idempotently.
func (b *Backend) RegisterSchema(ctx context.Context, schema content.Schema) (content.Schema, error) {
	if len(schema.Data) > b.opts.MaxSchemaSize {
		return content.Schema{}, collaberrors.NewEntityTooLarge("backend", "RegisterSchema", "schema", len(schema.Data), b.opts.MaxSchemaSize)
	}
	ct, err := b.registry.Get(schema.Type)
	if err != nil {
		return content.Schema{}, err
	}
	if schema.Hash == "" {
		schema.Hash = content.CreateSchemaHash(schema.Type, schema.Data)
	}
	if err := ct.ValidateSchema(schema); err != nil {
		return content.Schema{}, err
	}
	if err := ct.RegisterSchema(schema); err != nil {
		return content.Schema{}, err
	}
	stored, err := b.store.StoreSchema(ctx, schema)
	if err != nil {
		return content.Schema{}, err
	}
	return stored, nil
}

// GetSchema is a cache-through lookup: the registry is authoritative for
// in-memory registered schemas, but persisted schemas are the source of
// truth, so this always consults the store.
func (b *Backend) GetSchema(ctx context.Context, hash string) (*content.Schema, error) {
	return b.store.LoadSchema(ctx, hash)
}

// GetSnapshot delegates to the Cache, surfacing TypeError for an unknown
// content type before ever touching the cache/store.
func (b *Backend) GetSnapshot(ctx context.Context, typ, id string, atMostVersion int64) (content.Snapshot, error) {
	if _, err := b.registry.Get(typ); err != nil {
		return content.Snapshot{}, err
	}
	return b.cache.GetSnapshot(ctx, typ, id, atMostVersion)
}

// SubmitOperation delegates to the Cache, which guarantees the published
// event follows the durable append (spec.md §4.6 observable side effect).
// A Key is assigned if the caller left it empty.
func (b *Backend) SubmitOperation(ctx context.Context, op content.Operation) error {
	ctx, span := tracer.Start(ctx, "Backend.SubmitOperation",
		trace.WithAttributes(
			attribute.String("collabkit.type", op.Type),
			attribute.String("collabkit.id", op.ID),
			attribute.Int64("collabkit.version", op.Version),
		),
	)
	defer span.End()

	if op.Key == "" {
		op.Key = uuid.NewString()
	}
	size := len(op.Data)
	if size > b.opts.MaxOperationSize {
		err := collaberrors.NewEntityTooLarge("backend", "SubmitOperation", "operation", size, b.opts.MaxOperationSize)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if _, err := b.registry.Get(op.Type); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if err := b.cache.Submit(ctx, op); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// StreamOperations hands out a Subscriber per spec.md §4.5/§4.6.
func (b *Backend) StreamOperations(ctx context.Context, typ, id string, versionStart, versionEnd int64) (*cache.Subscriber, error) {
	if _, err := b.registry.Get(typ); err != nil {
		return nil, err
	}
	return b.cache.StreamOperations(typ, id, versionStart, versionEnd), nil
}

// Registry exposes the underlying ContentType registry, for callers (e.g.
// cmd/collabd) that pre-register content types at startup.
func (b *Backend) Registry() *content.Registry { return b.registry }

func (b *Backend) String() string {
	return fmt.Sprintf("backend(types=%v)", b.registry.List())
}
