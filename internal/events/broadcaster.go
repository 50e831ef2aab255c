// Package events provides the per-job event fan-out used by the engine and
// the SSE streaming endpoint. A broadcaster lives exactly as long as its
// job's run loop; observers attach and detach freely while it runs.
package events

import "sync"

// DefaultBufferSize is the per-observer channel buffer. A full buffer marks
// the observer as slow; delivery to it stops rather than stalling the run.
const DefaultBufferSize = 256

type client struct {
	ch     chan Event
	closed bool
}

// Broadcaster fans events out to zero or more observers. Delivery is
// best-effort and at-most-once per observer per event; a slow or gone
// observer never affects the others or the run loop.
type Broadcaster struct {
	mu      sync.Mutex
	clients map[int]*client
	nextID  int
	closed  bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[int]*client)}
}

// Subscribe attaches an observer and returns its event channel plus a
// cleanup function. The channel closes when the observer is detached or the
// broadcaster shuts down. Subscribing to a closed broadcaster returns an
// already-closed channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	c := &client{ch: make(chan Event, DefaultBufferSize)}
	b.clients[id] = c

	cleanup := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.drop(id)
	}
	return c.ch, cleanup
}

// Publish delivers an event to every attached observer without blocking.
// Observers whose buffers are full are dropped.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for id, c := range b.clients {
		select {
		case c.ch <- ev:
		default:
			b.drop(id)
		}
	}
}

// Close detaches every observer and rejects future subscriptions. Safe to
// call more than once.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id := range b.clients {
		b.drop(id)
	}
}

// ObserverCount returns the number of attached observers.
func (b *Broadcaster) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// drop removes and closes one observer. Caller must hold b.mu.
func (b *Broadcaster) drop(id int) {
	c, ok := b.clients[id]
	if !ok || c.closed {
		return
	}
	c.closed = true
	delete(b.clients, id)
	close(c.ch)
}
