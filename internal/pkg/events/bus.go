// Package events is the publish/subscribe channel owned by one storefront
// composition. Handlers run synchronously on the publishing goroutine, in
// subscription order.
package events

import (
	"sync"
)

// Topic names a kind of notification
type Topic string

const (
	// TopicGuestCartChanged fires after every guest cart mutation in this context.
	TopicGuestCartChanged Topic = "guest_cart.changed"
	// TopicStorage fires when another context of the same visitor wrote durable storage.
	TopicStorage Topic = "storage"
	// TopicServerCartChanged fires after any successful server cart mutation.
	TopicServerCartChanged Topic = "server_cart.changed"
	// TopicSessionChanged fires on every session state transition.
	TopicSessionChanged Topic = "session.changed"
)

// Event is delivered to subscribers
type Event struct {
	Topic   Topic
	Payload any
}

// Handler receives events for a topic
type Handler func(Event)

// Publisher is the write side of a Bus
type Publisher interface {
	Publish(topic Topic, payload any)
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans events out to the handlers registered for their topic
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Topic][]subscription),
	}
}

// Subscribe registers handler for topic and returns its unsubscribe func.
// Calling the returned func more than once is harmless.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[topic]
		for i, s := range subs {
			if s.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload to every current subscriber of topic
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	ev := Event{Topic: topic, Payload: payload}
	for _, s := range subs {
		s.handler(ev)
	}
}

// Len reports how many handlers are subscribed to topic
func (b *Bus) Len(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Discard is a Publisher that drops everything
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Topic, any) {}
