package pubsub_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/collabkit/internal/pubsub"
)

func TestLocalBus_DeliversInFIFOOrder(t *testing.T) {
	bus := pubsub.NewLocalBus()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	sub := bus.Subscribe("topic1", func(msg any) {
		mu.Lock()
		got = append(got, msg.(int))
		if len(got) == 5 {
			close(done)
		}
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	for i := 1; i <= 5; i++ {
		bus.Publish("topic1", i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestLocalBus_ActiveInactiveHooks(t *testing.T) {
	bus := pubsub.NewLocalBus()

	activeCh := make(chan struct{}, 1)
	inactiveCh := make(chan struct{}, 1)

	bus.OnActive("topic2", func() { activeCh <- struct{}{} })
	bus.OnInactive("topic2", func() { inactiveCh <- struct{}{} })

	sub := bus.Subscribe("topic2", func(msg any) {})

	select {
	case <-activeCh:
	case <-time.After(time.Second):
		t.Fatal("active hook did not fire")
	}

	sub.Unsubscribe()

	select {
	case <-inactiveCh:
	case <-time.After(time.Second):
		t.Fatal("inactive hook did not fire")
	}
}

func TestLocalBus_PublishWithNoSubscribersIsNoop(t *testing.T) {
	bus := pubsub.NewLocalBus()
	require.NotPanics(t, func() {
		bus.Publish("nobody-listening", "x")
	})
}
