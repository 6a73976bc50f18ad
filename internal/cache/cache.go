// Package cache implements the Document Cache of spec.md §4.5: a
// per-(type,id) in-memory base snapshot plus contiguous tail of recent
// operations, serving reads directly when possible and rebuilding from the
// ContentStore otherwise, with TTL eviction, tail bounds, subscriber
// pinning, and the conflict-driven catch-up behaviour required by
// multi-backend safety (spec.md §9).
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AltairaLabs/collabkit/internal/content"
	"github.com/AltairaLabs/collabkit/internal/metrics"
	"github.com/AltairaLabs/collabkit/internal/pubsub"
	"github.com/AltairaLabs/collabkit/internal/store"
	collaberrors "github.com/AltairaLabs/collabkit/pkg/errors"
	"github.com/AltairaLabs/collabkit/pkg/logger"
)

// ShouldStoreSnapshot decides whether a newly confirmed snapshot should be
// persisted, per spec.md §4.5 Retention / Open Question (a).
type ShouldStoreSnapshot func(content.Snapshot) bool

// DefaultShouldStoreSnapshot persists every Kth version (reference K=10).
func DefaultShouldStoreSnapshot(k int64) ShouldStoreSnapshot {
	if k <= 0 {
		k = 10
	}
	return func(s content.Snapshot) bool { return s.Version%k == 0 }
}

// Options configures a Cache.
type Options struct {
	TTL                 time.Duration
	TailLimit           int
	SweepInterval       time.Duration
	ShouldStoreSnapshot ShouldStoreSnapshot
	MaxSnapshotSize     int // 0 disables the cap
	OnWarning           func(error)
}

func (o *Options) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 10 * time.Second
	}
	if o.TailLimit <= 0 {
		o.TailLimit = 50
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	if o.ShouldStoreSnapshot == nil {
		o.ShouldStoreSnapshot = DefaultShouldStoreSnapshot(10)
	}
	if o.OnWarning == nil {
		o.OnWarning = func(err error) { logger.Warn("cache: warning", "error", err) }
	}
}

// Cache is the Document Cache.
type Cache struct {
	store    store.Store
	bus      pubsub.Bus
	registry *content.Registry
	opts     Options

	mu      sync.Mutex
	entries map[string]*entry

	sf singleflight.Group

	stopSweep chan struct{}
	doneSweep chan struct{}
}

// New constructs a Cache and starts its TTL eviction sweep goroutine.
func New(st store.Store, bus pubsub.Bus, registry *content.Registry, opts Options) *Cache {
	opts.setDefaults()
	c := &Cache{
		store:     st,
		bus:       bus,
		registry:  registry,
		opts:      opts,
		entries:   make(map[string]*entry),
		stopSweep: make(chan struct{}),
		doneSweep: make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Close stops the TTL sweep goroutine and closes every live subscriber,
// mirroring the teacher's Server.Shutdown lifecycle.
func (c *Cache) Close() {
	close(c.stopSweep)
	<-c.doneSweep

	c.mu.Lock()
	entries := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	for _, e := range entries {
		e.mu.RLock()
		subs := make([]*Subscriber, 0, len(e.subs))
		for s := range e.subs {
			subs = append(subs, s)
		}
		e.mu.RUnlock()
		for _, s := range subs {
			s.finish(collaberrors.NewDisconnected("cache", "Close"))
		}
	}
}

func docKey(typ, id string) string { return typ + "\x00" + id }
func topicName(typ, id string) string { return fmt.Sprintf("operation:%s:%s", typ, id) }

func (c *Cache) getOrCreateEntry(typ, id string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := docKey(typ, id)
	e, ok := c.entries[key]
	if !ok {
		e = newEntry(typ, id)
		c.entries[key] = e
	}
	return e
}

func (c *Cache) sweepLoop() {
	defer close(c.doneSweep)
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweepOnce()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache) sweepOnce() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if e.idleFor(c.opts.TTL) {
			metrics.CacheEvictions.WithLabelValues(e.typ).Inc()
			delete(c.entries, key)
		}
	}
}

// GetSnapshot returns the snapshot at atMostVersion, rebuilding from the
// store when the cache can't serve it from its base+tail window.
func (c *Cache) GetSnapshot(ctx context.Context, typ, id string, atMostVersion int64) (content.Snapshot, error) {
	ct, err := c.registry.Get(typ)
	if err != nil {
		return content.Snapshot{}, err
	}

	e := c.getOrCreateEntry(typ, id)
	base, tail, T := e.snapshotState()

	if base.Version <= atMostVersion && atMostVersion <= T {
		metrics.CacheHits.WithLabelValues(typ).Inc()
		return foldRange(ct, base, tail[:atMostVersion-base.Version])
	}
	metrics.CacheMisses.WithLabelValues(typ).Inc()

	sfKey := fmt.Sprintf("%s:%d", docKey(typ, id), atMostVersion)
	result, err, _ := c.sf.Do(sfKey, func() (any, error) {
		return c.rebuild(ctx, ct, e, typ, id, atMostVersion)
	})
	if err != nil {
		return content.Snapshot{}, err
	}
	return result.(content.Snapshot), nil
}

func (c *Cache) rebuild(ctx context.Context, ct content.ContentType, e *entry, typ, id string, atMostVersion int64) (content.Snapshot, error) {
	storeBase := content.Empty(typ, id)
	if snap, err := c.store.LoadSnapshot(ctx, typ, id, atMostVersion); err != nil {
		return content.Snapshot{}, err
	} else if snap != nil {
		storeBase = *snap
	}

	ops, err := c.store.LoadOperations(ctx, typ, id, storeBase.Version+1, atMostVersion+1)
	if err != nil {
		return content.Snapshot{}, err
	}

	result, err := foldRange(ct, storeBase, ops)
	if err != nil {
		return content.Snapshot{}, err
	}

	e.promote(storeBase, ops, c.opts.TailLimit, ct.Apply)
	return result, nil
}

func foldRange(ct content.ContentType, base content.Snapshot, ops []content.Operation) (content.Snapshot, error) {
	snap := base
	for _, op := range ops {
		var err error
		snap, err = ct.Apply(snap, op)
		if err != nil {
			return content.Snapshot{}, err
		}
	}
	return snap, nil
}

// Submit validates and appends op, publishing the confirmation and
// running the retention policy on success; on a version conflict it
// performs conflict-driven catch-up (spec.md §4.5) before returning the
// store's *errors.AlreadyExists.
func (c *Cache) Submit(ctx context.Context, op content.Operation) error {
	start := time.Now()
	status := "confirmed"
	defer func() {
		metrics.SubmitDuration.WithLabelValues(op.Type, status).Observe(time.Since(start).Seconds())
	}()

	ct, err := c.registry.Get(op.Type)
	if err != nil {
		status = "error"
		return err
	}

	e := c.getOrCreateEntry(op.Type, op.ID)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	storeErr := c.store.StoreOperation(ctx, op)
	if storeErr != nil {
		var ae *collaberrors.AlreadyExists
		if !asAlreadyExists(storeErr, &ae) || ae.EntityName != "version" {
			status = "error"
			return storeErr
		}
		status = "conflict"
		winnerVersion, _ := ae.Value.(int64)
		c.catchUp(ctx, e, op.Type, op.ID, winnerVersion)
		return storeErr
	}

	if err := e.extendTail(op, c.opts.TailLimit, ct.Apply); err != nil {
		logger.Warn("cache: apply failed, tail not extended", "type", op.Type, "id", op.ID, "version", op.Version, "data", logger.RedactPayload(op.Data))
		c.opts.OnWarning(err)
	}

	c.bus.Publish(topicName(op.Type, op.ID), op)
	c.applyRetention(ctx, e, ct, op)

	return nil
}

// catchUp pulls operations (currentT, winnerVersion] from the store into
// the entry's tail and publishes each to subscribers, so a caller that
// lost the version race observes its own stream advance past the winner
// before the error is returned — the "conflict-driven catch-up" property
// of spec.md §4.5 / invariant 5.
func (c *Cache) catchUp(ctx context.Context, e *entry, typ, id string, winnerVersion int64) {
	_, _, T := e.snapshotState()
	if winnerVersion <= T {
		return
	}

	ops, err := c.store.LoadOperations(ctx, typ, id, T+1, winnerVersion+1)
	if err != nil {
		c.opts.OnWarning(fmt.Errorf("cache: catch-up load failed: %w", err))
		return
	}

	ct, err := c.registry.Get(typ)
	if err != nil {
		c.opts.OnWarning(err)
		return
	}

	for _, op := range ops {
		if err := e.extendTail(op, c.opts.TailLimit, ct.Apply); err != nil {
			c.opts.OnWarning(err)
		}
		c.bus.Publish(topicName(typ, id), op)
	}
}

func (c *Cache) applyRetention(ctx context.Context, e *entry, ct content.ContentType, op content.Operation) {
	base, tail, _ := e.snapshotState()
	offset := op.Version - base.Version
	if offset < 1 || offset > int64(len(tail)) {
		return
	}
	snap, err := foldRange(ct, base, tail[:offset])
	if err != nil {
		c.opts.OnWarning(err)
		return
	}

	if !c.opts.ShouldStoreSnapshot(snap) {
		return
	}
	if c.opts.MaxSnapshotSize > 0 && len(snap.Data) > c.opts.MaxSnapshotSize {
		c.opts.OnWarning(collaberrors.NewEntityTooLarge("cache", "applyRetention", "snapshot", len(snap.Data), c.opts.MaxSnapshotSize))
		return
	}
	if err := c.store.StoreSnapshot(ctx, snap); err != nil {
		var ae *collaberrors.AlreadyExists
		if !asAlreadyExists(err, &ae) {
			c.opts.OnWarning(err)
		}
	}
}

// StreamOperations hands out a Subscriber delivering operations with
// versionStart <= version < versionEnd exactly once, in order.
func (c *Cache) StreamOperations(typ, id string, versionStart, versionEnd int64) *Subscriber {
	e := c.getOrCreateEntry(typ, id)
	sub := newSubscriber(typ, id, versionStart, versionEnd, e)
	if versionStart >= versionEnd {
		return sub
	}

	e.pin(sub)
	sub.busSub = c.bus.Subscribe(topicName(typ, id), sub.feed)
	metrics.SubscribersActive.Inc()
	sub.countedActive = true

	backlogEnd := versionEnd
	if backlogEnd > versionStart {
		go func() {
			ops, err := c.store.LoadOperations(context.Background(), typ, id, versionStart, backlogEnd)
			if err != nil {
				loadErr := fmt.Errorf("cache: backlog load failed: %w", err)
				c.opts.OnWarning(loadErr)
				sub.finish(loadErr)
				return
			}
			for _, op := range ops {
				sub.enqueue(op)
			}
		}()
	}

	return sub
}

func asAlreadyExists(err error, target **collaberrors.AlreadyExists) bool {
	ae, ok := err.(*collaberrors.AlreadyExists)
	if ok {
		*target = ae
	}
	return ok
}
