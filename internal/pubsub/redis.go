package pubsub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/AltairaLabs/collabkit/pkg/logger"
)

// RedisBus is a Bus backed by Redis PUBLISH/SUBSCRIBE, grounded on the
// teacher's go-redis client usage conventions. Published messages are
// JSON-encoded on the wire, so a subscriber elsewhere in the process that
// needs the original Go type back must decode msg itself (it arrives as
// whatever json.Unmarshal into any produces — typically map[string]any).
// OnActive/OnInactive fire from this process's own subscriber count, same
// as LocalBus; they are not a signal shared across processes.
type RedisBus struct {
	client *redis.Client

	mu     sync.Mutex
	topics map[string]*redisTopicState
}

// NewRedisBus wraps an existing *redis.Client.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, topics: make(map[string]*redisTopicState)}
}

type redisTopicState struct {
	mu            sync.Mutex
	subs          map[int]Handler
	activeHooks   map[int]func()
	inactiveHooks map[int]func()
	nextID        int

	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func (b *RedisBus) getOrCreate(topic string) *redisTopicState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.topics[topic]
	if ok {
		return ts
	}

	ctx, cancel := context.WithCancel(context.Background())
	ps := b.client.Subscribe(ctx, topic)
	ts = &redisTopicState{
		subs:          make(map[int]Handler),
		activeHooks:   make(map[int]func()),
		inactiveHooks: make(map[int]func()),
		pubsub:        ps,
		cancel:        cancel,
	}
	b.topics[topic] = ts

	go ts.receiveLoop(ctx)
	return ts
}

func (ts *redisTopicState) receiveLoop(ctx context.Context) {
	ch := ts.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var decoded any
			if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
				logger.Warn("pubsub: redis payload decode failed", "topic", msg.Channel, "error", err)
				continue
			}
			ts.mu.Lock()
			handlers := make([]Handler, 0, len(ts.subs))
			for _, h := range ts.subs {
				handlers = append(handlers, h)
			}
			ts.mu.Unlock()
			for _, h := range handlers {
				invokeSafely(h, decoded)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *RedisBus) removeIfIdle(topic string, ts *redisTopicState) {
	ts.mu.Lock()
	idle := len(ts.subs) == 0 && len(ts.activeHooks) == 0 && len(ts.inactiveHooks) == 0
	ts.mu.Unlock()
	if !idle {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.topics[topic]; ok && cur == ts {
		ts.cancel()
		_ = ts.pubsub.Close()
		delete(b.topics, topic)
	}
}

// Subscribe registers h for topic, subscribing to the Redis channel on
// first use.
func (b *RedisBus) Subscribe(topic string, h Handler) Subscription {
	ts := b.getOrCreate(topic)

	ts.mu.Lock()
	id := ts.nextID
	ts.nextID++
	ts.subs[id] = h
	becameActive := len(ts.subs) == 1
	var hooks []func()
	if becameActive {
		for _, hook := range ts.activeHooks {
			hooks = append(hooks, hook)
		}
	}
	ts.mu.Unlock()

	for _, hook := range hooks {
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

// Publish JSON-encodes msg and issues a Redis PUBLISH on topic.
func (b *RedisBus) Publish(topic string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("pubsub: redis publish encode failed", "topic", topic, "error", err)
		return
	}
	if err := b.client.Publish(context.Background(), topic, data).Err(); err != nil {
		logger.Error("pubsub: redis publish failed", "topic", topic, "error", err)
	}
}

// OnActive registers h to run when topic's local subscriber count
// transitions from zero to one.
func (b *RedisBus) OnActive(topic string, h func()) Subscription {
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

// OnInactive registers h to run when topic's local subscriber count
// transitions from one to zero.
func (b *RedisBus) OnInactive(topic string, h func()) Subscription {
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
