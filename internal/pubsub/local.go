package pubsub

import "sync"

// LocalBus is an in-process Bus, grounded on the teacher's event bus
// (listener map guarded by a mutex, async dispatch). Unlike the teacher's
// bus, delivery here is serialised per topic through one dedicated
// goroutine per active topic rather than "go func()" per publish: that is
// what lets LocalBus guarantee FIFO delivery order per topic (spec.md
// §4.2) while still decoupling delivery from the publisher's call stack
// (spec.md §9, "avoid re-entrancy during mutation").
type LocalBus struct {
	mu     sync.Mutex
	topics map[string]*topicState
}

// NewLocalBus returns an empty LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{topics: make(map[string]*topicState)}
}

type topicState struct {
	mu            sync.Mutex
	subs          map[int]Handler
	activeHooks   map[int]func()
	inactiveHooks map[int]func()
	nextID        int

	queue chan any
	stop  chan struct{}
}

func newTopicState() *topicState {
	ts := &topicState{
		subs:          make(map[int]Handler),
		activeHooks:   make(map[int]func()),
		inactiveHooks: make(map[int]func()),
		queue:         make(chan any, 256),
		stop:          make(chan struct{}),
	}
	go ts.dispatchLoop()
	return ts
}

func (ts *topicState) dispatchLoop() {
	for {
		select {
		case msg := <-ts.queue:
			ts.mu.Lock()
			handlers := make([]Handler, 0, len(ts.subs))
			for _, h := range ts.subs {
				handlers = append(handlers, h)
			}
			ts.mu.Unlock()
			for _, h := range handlers {
				invokeSafely(h, msg)
			}
		case <-ts.stop:
			return
		}
	}
}

func invokeSafely(h Handler, msg any) {
	defer func() { _ = recover() }()
	h(msg)
}

func (b *LocalBus) getOrCreate(topic string) *topicState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.topics[topic]
	if !ok {
		ts = newTopicState()
		b.topics[topic] = ts
	}
	return ts
}

// removeIfIdle tears down a topic's dispatch goroutine once it has no
// subscribers and no lifecycle hooks left, so long-lived buses don't
// accumulate goroutines for documents that have gone cold.
func (b *LocalBus) removeIfIdle(topic string, ts *topicState) {
	ts.mu.Lock()
	idle := len(ts.subs) == 0 && len(ts.activeHooks) == 0 && len(ts.inactiveHooks) == 0
	ts.mu.Unlock()
	if !idle {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.topics[topic]; ok && cur == ts {
		close(ts.stop)
		delete(b.topics, topic)
	}
}

type localSubscription struct {
	unsubscribe func()
	once        sync.Once
}

func (s *localSubscription) Unsubscribe() {
	s.once.Do(s.unsubscribe)
}

// Subscribe registers h for topic. Fires any registered OnActive hooks if
// this is the topic's first subscriber.
func (b *LocalBus) Subscribe(topic string, h Handler) Subscription {
	ts := b.getOrCreate(topic)

	ts.mu.Lock()
	id := ts.nextID
	ts.nextID++
	ts.subs[id] = h
	becameActive := len(ts.subs) == 1
	var activeHooks []func()
	if becameActive {
		for _, hook := range ts.activeHooks {
			activeHooks = append(activeHooks, hook)
		}
	}
	ts.mu.Unlock()

	for _, hook := range activeHooks {
		hook()
	}

	return &localSubscription{unsubscribe: func() {
		ts.mu.Lock()
		delete(ts.subs, id)
		becameInactive := len(ts.subs) == 0
		var inactiveHooks []func()
		if becameInactive {
			for _, hook := range ts.inactiveHooks {
				inactiveHooks = append(inactiveHooks, hook)
			}
		}
		ts.mu.Unlock()

		for _, hook := range inactiveHooks {
			hook()
		}
		b.removeIfIdle(topic, ts)
	}}
}

// Publish enqueues msg for delivery to topic's current subscribers, in the
// order Publish was called.
func (b *LocalBus) Publish(topic string, msg any) {
	b.mu.Lock()
	ts, ok := b.topics[topic]
	b.mu.Unlock()
	if !ok {
		return
	}
	ts.queue <- msg
}

// OnActive registers h to run when topic's subscriber count transitions
// from zero to one.
func (b *LocalBus) OnActive(topic string, h func()) Subscription {
	ts := b.getOrCreate(topic)
	ts.mu.Lock()
	id := ts.nextID
	ts.nextID++
	ts.activeHooks[id] = h
	ts.mu.Unlock()

	return &localSubscription{unsubscribe: func() {
		ts.mu.Lock()
		delete(ts.activeHooks, id)
		ts.mu.Unlock()
		b.removeIfIdle(topic, ts)
	}}
}

// OnInactive registers h to run when topic's subscriber count transitions
// from one to zero.
func (b *LocalBus) OnInactive(topic string, h func()) Subscription {
	ts := b.getOrCreate(topic)
	ts.mu.Lock()
	id := ts.nextID
	ts.nextID++
	ts.inactiveHooks[id] = h
	ts.mu.Unlock()

	return &localSubscription{unsubscribe: func() {
		ts.mu.Lock()
		delete(ts.inactiveHooks, id)
		ts.mu.Unlock()
		b.removeIfIdle(topic, ts)
	}}
}
