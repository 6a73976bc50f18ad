package pubsub_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/AltairaLabs/collabkit/internal/pubsub"
)

func newRedisBus(t *testing.T) *pubsub.RedisBus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return pubsub.NewRedisBus(client)
}

func TestRedisBus_PublishSubscribeRoundTrip(t *testing.T) {
	bus := newRedisBus(t)

	received := make(chan any, 1)
	sub := bus.Subscribe("doc-topic", func(msg any) { received <- msg })
	defer sub.Unsubscribe()

	// give the subscribe goroutine a moment to register with miniredis
	time.Sleep(50 * time.Millisecond)

	bus.Publish("doc-topic", map[string]any{"version": float64(3)})

	select {
	case msg := <-received:
		m, ok := msg.(map[string]any)
		assert.True(t, ok)
		assert.Equal(t, float64(3), m["version"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for redis pubsub delivery")
	}
}
