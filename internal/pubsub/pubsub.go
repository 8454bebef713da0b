// Package pubsub implements fire-and-forget fan-out of conversation events
// to local subscribers. Delivery is exactly once to each handler
// subscribed at dispatch time: a
// subscriber added after an event was dispatched never sees it, and
// Dispatch never blocks on a slow or wedged subscriber beyond its own
// callback.
package pubsub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/pkg/events"
)

// SubscriptionID is the opaque handle returned by Subscribe.
type SubscriptionID string

// Handler receives one dispatched event. Dispatch notifies from a snapshot
// rather than holding the registry lock, so a handler may call Subscribe or
// Unsubscribe on the same Bus; the change applies from the next Dispatch.
type Handler func(events.Event)

// Bus is one conversation's pub/sub fan-out point.
type Bus struct {
	mu   sync.RWMutex
	subs map[SubscriptionID]Handler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: map[SubscriptionID]Handler{}}
}

// Subscribe registers handler and returns an ID for later Unsubscribe.
func (b *Bus) Subscribe(handler Handler) SubscriptionID {
	id := SubscriptionID(uuid.NewString())
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = handler
	return id
}

// Unsubscribe removes a previously registered handler. Unsubscribing an
// unknown or already-removed ID is a no-op.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Dispatch fans event out to every subscriber registered at the moment of
// the call. It takes a snapshot under the read lock and invokes handlers
// outside it, so a handler's own Subscribe/Unsubscribe calls or slow I/O
// never block the registry.
func (b *Bus) Dispatch(event events.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Len reports the current subscriber count, mainly for tests and metrics.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
