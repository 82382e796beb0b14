package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handler consumes one delivered event. Handlers attached to different
// subscriptions run on different goroutines; a handler only ever sees its
// own subscription's stream, in publish order.
type Handler func(Event)

// Bus fans the single decoded event stream out to any number of
// independently paced subscribers. Publish never blocks and never loses
// events; each subscription drains its own queue on its own goroutine, so a
// stuck handler cannot delay the publisher or the other subscriptions.
type Bus struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription

	publishCount atomic.Uint64
	deliverCount atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{
		subs: make(map[uuid.UUID]*Subscription),
	}
}

// Publish hands one event to every attached subscription. Called by the
// transport once per decoded callback, from whatever goroutine the
// transport uses.
func (b *Bus) Publish(ev Event) {
	b.publishCount.Add(1)
	b.mu.RLock()
	for _, sub := range b.subs {
		sub.push(ev)
	}
	b.mu.RUnlock()
}

// Subscribe attaches handler to the stream. It observes every event
// published after Subscribe returns, in publish order, and nothing that was
// published before.
func (b *Bus) Subscribe(handler Handler) *Subscription {
	sub := &Subscription{
		id:   uuid.New(),
		bus:  b,
		wake: make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.run(handler)
	return sub
}

// Close detaches every subscription. The bus stays usable for Publish, which
// then simply reaches nobody.
func (b *Bus) Close() {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Subscribers returns the number of attached subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Statistics is a snapshot of the bus counters.
type Statistics struct {
	PublishCount uint64
	DeliverCount uint64
	Subscribers  int
}

func (b *Bus) Statistics() Statistics {
	return Statistics{
		PublishCount: b.publishCount.Load(),
		DeliverCount: b.deliverCount.Load(),
		Subscribers:  b.Subscribers(),
	}
}

func (b *Bus) remove(id uuid.UUID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is the ephemeral relation between the stream and one
// handler, scoped to the lifetime of a single logical operation.
type Subscription struct {
	id  uuid.UUID
	bus *Bus

	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
}

// Unsubscribe detaches the subscription. Idempotent, callable from any
// goroutine, including a timeout watchdog racing the consumer loop. After
// it returns no further events are delivered.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	s.bus.remove(s.id)

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(handler Handler) {
	for range s.wake {
		for {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				return
			}
			if len(s.queue) == 0 {
				s.queue = nil
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.deliver(handler, ev)
		}
	}
}

func (s *Subscription) deliver(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("subscriber handler panicked", "subscription", s.id, "event", ev.Type.String(), "panic", r)
		}
	}()
	s.bus.deliverCount.Add(1)
	handler(ev)
}
