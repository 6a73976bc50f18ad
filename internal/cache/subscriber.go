package cache

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/time/rate"

	"github.com/AltairaLabs/collabkit/internal/content"
	"github.com/AltairaLabs/collabkit/internal/metrics"
	"github.com/AltairaLabs/collabkit/internal/pubsub"
)

// Subscriber is a live stream request bound to (type, id, versionStart,
// versionEnd), per spec.md §3. It receives each confirmed operation in its
// range exactly once, in ascending version order, regardless of whether
// the operation arrived via backlog replay or live bus delivery (the two
// sources can race and even duplicate at the boundary; the reorder buffer
// below absorbs that).
//
// Backpressure (spec.md §5): the bus's delivery goroutine only ever does a
// fast, non-blocking append into pending — it never blocks on a slow
// consumer. A dedicated per-subscriber goroutine drains pending and
// performs the (possibly blocking) send on out, so one slow subscriber
// never stalls delivery to others on the same topic.
type Subscriber struct {
	typ, id                string
	versionStart, versionEnd int64

	out chan content.Operation

	mu      sync.Mutex
	pending []content.Operation
	notify  chan struct{}

	closed     chan struct{}
	closeOnce  sync.Once
	finishOnce sync.Once
	err        error

	entry   *entry
	busSub  pubsub.Subscription
	limiter *rate.Limiter
	cancel  context.CancelFunc

	countedActive bool
}

func newSubscriber(typ, id string, versionStart, versionEnd int64, e *entry) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Subscriber{
		typ:          typ,
		id:           id,
		versionStart: versionStart,
		versionEnd:   versionEnd,
		out:          make(chan content.Operation, 16),
		notify:       make(chan struct{}, 1),
		closed:       make(chan struct{}),
		entry:        e,
		limiter:      rate.NewLimiter(rate.Limit(2000), 200),
		cancel:       cancel,
	}
	if versionStart < versionEnd {
		go s.deliverLoop(ctx)
	} else {
		// spec.md §4.5 / §8: versionStart >= versionEnd is an empty,
		// immediately-closed stream.
		close(s.out)
	}
	return s
}

// Operations returns the channel of in-order, de-duplicated operations.
// It is closed when the stream ends (versionEnd-1 delivered) or is
// closed by either side.
func (s *Subscriber) Operations() <-chan content.Operation { return s.out }

// Err returns the error the stream ended with, if any. Only meaningful
// after Operations() is closed.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes from the bus, releases the entry pin, and stops
// delivery. Safe to call multiple times and safe to call after the stream
// has already ended on its own.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		if s.busSub != nil {
			s.busSub.Unsubscribe()
		}
		if s.entry != nil {
			s.entry.unpin(s)
		}
		if s.countedActive {
			metrics.SubscribersActive.Dec()
		}
	})
}

// feed is the bus handler: a fast, non-blocking append into pending.
// LocalBus hands over the content.Operation value itself; RedisBus hands
// over its JSON-decoded form, which is re-decoded into an Operation here.
func (s *Subscriber) feed(msg any) {
	op, ok := msg.(content.Operation)
	if !ok {
		raw, err := json.Marshal(msg)
		if err != nil || json.Unmarshal(raw, &op) != nil {
			return
		}
		if op.Type != s.typ || op.ID != s.id {
			return
		}
	}
	s.enqueue(op)
}

func (s *Subscriber) enqueue(op content.Operation) {
	s.mu.Lock()
	s.pending = append(s.pending, op)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// finish ends the stream with err (nil on a clean end-of-range). Callable
// from deliverLoop and from the cache's backlog-load goroutine alike, so
// a store outage surfaces as a stream error instead of a goroutine that
// never delivers the backfill it promised; finishOnce keeps the racing
// caller from double-closing out.
func (s *Subscriber) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
		close(s.out)
		s.Close()
	})
}

// deliverLoop holds out-of-order/duplicate arrivals in a small reorder
// buffer and only ever sends nextVersion forward, so backlog replay and
// live bus delivery can overlap freely without the caller ever observing
// a gap or a duplicate (spec.md §5, invariant 2).
func (s *Subscriber) deliverLoop(ctx context.Context) {
	held := make(map[int64]content.Operation)
	next := s.versionStart

	for {
		if next >= s.versionEnd {
			s.finish(nil)
			return
		}

		if op, ok := held[next]; ok {
			delete(held, next)
			if err := s.limiter.Wait(ctx); err != nil {
				s.finish(nil)
				return
			}
			select {
			case s.out <- op:
				next++
				continue
			case <-s.closed:
				s.finish(nil)
				return
			}
		}

		select {
		case <-s.notify:
			s.mu.Lock()
			batch := s.pending
			s.pending = nil
			s.mu.Unlock()
			for _, op := range batch {
				if op.Version < next {
					continue // already delivered, drop duplicate
				}
				held[op.Version] = op
			}
		case <-s.closed:
			s.finish(nil)
			return
		}
	}
}
