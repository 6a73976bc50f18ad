package cache

import (
	"sync"
	"time"

	"github.com/AltairaLabs/collabkit/internal/content"
)

// entry is the per-(type,id) Cache Entry of spec.md §3: a base snapshot
// plus a contiguous trailing run of operations beyond it, and the set of
// live subscribers that pin it against eviction.
//
// writeMu enforces the per-document single-writer property (spec.md §4.5,
// §5): Submit and the conflict-driven catch-up it triggers hold writeMu
// for their whole critical section. mu guards the fields readers and the
// writer both touch, so a reader never observes a torn base+tail pair.
type entry struct {
	typ, id string

	writeMu sync.Mutex

	mu         sync.RWMutex
	base       content.Snapshot
	tail       []content.Operation // ops[base.Version+1 .. T]
	lastAccess time.Time
	subs       map[*Subscriber]struct{}
}

func newEntry(typ, id string) *entry {
	return &entry{
		typ:        typ,
		id:         id,
		base:       content.Empty(typ, id),
		lastAccess: time.Now(),
		subs:       make(map[*Subscriber]struct{}),
	}
}

// snapshotState returns a consistent (base, tail, T) triple and touches
// lastAccess.
func (e *entry) snapshotState() (content.Snapshot, []content.Operation, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = time.Now()
	tail := make([]content.Operation, len(e.tail))
	copy(tail, e.tail)
	return e.base, tail, e.base.Version + int64(len(e.tail))
}

// pin registers sub against this entry so TTL eviction skips it.
func (e *entry) pin(sub *Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs[sub] = struct{}{}
	e.lastAccess = time.Now()
}

// unpin removes sub's pin.
func (e *entry) unpin(sub *Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, sub)
	e.lastAccess = time.Now()
}

// idleFor reports whether the entry has zero subscribers and has not been
// accessed for at least d.
func (e *entry) idleFor(d time.Duration) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs) == 0 && time.Since(e.lastAccess) >= d
}

// extendTail appends op to the tail when op.Version is
// base.Version+len(tail)+1, and trims the tail to at most limit entries by
// folding the oldest excess operations into base via apply, preserving the
// base+tail contiguity invariant. An op that does not directly follow the
// tail (e.g. on an entry rebuilt empty after eviction) leaves the entry
// unchanged.
func (e *entry) extendTail(op content.Operation, limit int, apply func(content.Snapshot, content.Operation) (content.Snapshot, error)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if op.Version != e.base.Version+int64(len(e.tail))+1 {
		e.lastAccess = time.Now()
		return nil
	}
	e.tail = append(e.tail, op)
	e.lastAccess = time.Now()
	return e.trimLocked(limit, apply)
}

// promote overwrites base/tail with a freshly rebuilt state, but only if
// it advances the entry's known tip (never regresses it for a caller that
// asked about an older version than what's already cached).
func (e *entry) promote(base content.Snapshot, tail []content.Operation, limit int, apply func(content.Snapshot, content.Operation) (content.Snapshot, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	newT := base.Version + int64(len(tail))
	curT := e.base.Version + int64(len(e.tail))
	if newT <= curT {
		e.lastAccess = time.Now()
		return
	}
	e.base = base
	e.tail = tail
	e.lastAccess = time.Now()
	_ = e.trimLocked(limit, apply)
}

func (e *entry) trimLocked(limit int, apply func(content.Snapshot, content.Operation) (content.Snapshot, error)) error {
	for len(e.tail) > limit {
		folded, err := apply(e.base, e.tail[0])
		if err != nil {
			return err
		}
		e.base = folded
		e.tail = e.tail[1:]
	}
	return nil
}
