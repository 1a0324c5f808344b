package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/oshokin/sos-engine/internal/domain/alert"
)

// DefaultBuffer is the subscription buffer used when none is requested.
const DefaultBuffer = 64

// Bus delivers events to every subscriber without blocking the publisher.
// A subscriber whose buffer is full misses the event; Dropped counts those.
type Bus struct {
	// mu protects subs and closed.
	mu sync.RWMutex
	// subs maps a subscription id to its channel.
	subs map[uint64]chan alert.Event
	// next is the last issued subscription id.
	next uint64
	// closed rejects new subscriptions and publications.
	closed bool
	// dropped counts events not delivered to a slow subscriber.
	dropped atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[uint64]chan alert.Event),
	}
}

// Subscribe returns a channel of events and a function ending the subscription.
// The channel is closed by cancel or by Close.
func (b *Bus) Subscribe(buffer int) (<-chan alert.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	ch := make(chan alert.Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)

		return ch, func() {}
	}

	b.next++
	id := b.next
	b.subs[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers the event to every subscriber with room in its buffer.
func (b *Bus) Publish(event alert.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
