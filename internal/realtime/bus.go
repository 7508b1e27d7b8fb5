package realtime

import (
	"sync"

	"teamwire/pkg/interfaces"
	"teamwire/pkg/types"
)

// Handler consumes one dispatched event.
type Handler func(types.Event)

// Bus is a typed event bus: a mapping from event name to an ordered list of
// subscriber handles
// ARCHITECTURAL DISCOVERY: Dispatch copies the handler list under a read
// lock before invoking, so subscribe/unsubscribe during dispatch never
// drops or reorders events already in flight
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[string][]*busSubscription
}

type busSubscription struct {
	bus   *Bus
	event string
	id    int
	fn    Handler
	once  sync.Once
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *busSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.event, s.id)
	})
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]*busSubscription)}
}

// Subscribe registers a handler for the named event and returns its
// cancellation handle. Handlers run in registration order.
func (b *Bus) Subscribe(event string, fn Handler) interfaces.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &busSubscription{bus: b, event: event, id: b.nextID, fn: fn}
	b.handlers[event] = append(b.handlers[event], sub)
	return sub
}

// Dispatch delivers an event to every subscriber of its name, in
// registration order. Called from the single reader goroutine, which is what
// gives FIFO delivery per connection.
func (b *Bus) Dispatch(ev types.Event) {
	b.mu.RLock()
	subs := make([]*busSubscription, len(b.handlers[ev.Name]))
	copy(subs, b.handlers[ev.Name])
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}

func (b *Bus) remove(event string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[event]
	for i, sub := range subs {
		if sub.id == id {
			b.handlers[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[event]) == 0 {
		delete(b.handlers, event) // TECHNICAL: Clean up empty lists to prevent map growth
	}
}
