// Package pubsub implements the PubSub Bus of spec.md §4.2: topic-string
// keyed, ordered delivery to all current subscribers, plus active/inactive
// channel lifecycle signals used by presence streams to lazy-load. LocalBus
// and RedisBus both satisfy Bus so internal/backend and internal/cache are
// agnostic to which is wired in.
package pubsub

// Handler receives a published message.
type Handler func(msg any)

// Subscription is returned by Subscribe/OnActive/OnInactive; call
// Unsubscribe to detach.
type Subscription interface {
	Unsubscribe()
}

// Bus is the pub/sub contract. Delivery is FIFO per topic with respect to
// a single publisher's Publish call order; no cross-topic ordering is
// guaranteed.
type Bus interface {
	// Subscribe registers h to receive every message published on topic
	// from this point forward.
	Subscribe(topic string, h Handler) Subscription

	// Publish delivers msg to every current subscriber of topic.
	Publish(topic string, msg any)

	// OnActive registers h to run exactly once when topic transitions
	// from zero to one subscriber.
	OnActive(topic string, h func()) Subscription

	// OnInactive registers h to run exactly once when topic transitions
	// from one subscriber to zero.
	OnInactive(topic string, h func()) Subscription
}
