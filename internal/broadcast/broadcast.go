// Package broadcast implements a bounded multi-consumer broadcast channel
// with lag reporting, the Go shape closest to Tokio's broadcast channel
// used by the agent runtime this package was modeled after. No library in
// the dependency set provides this: fan-out helpers in common use either
// drop silently or grow unboundedly, neither of which satisfies a
// subscriber needing to know it missed messages.
package broadcast

import (
	"sync"
)

// Lagged is the error returned by Receive when a subscriber fell behind and the
// ring buffer overwrote messages it had not yet consumed.
type Lagged struct {
	Skipped uint64
}

func (e *Lagged) Error() string {
	return "broadcast: receiver lagged behind"
}

// Broadcaster is a bounded ring buffer of published values. Publish never
// blocks; subscribers that fall more than Capacity values behind lose the
// oldest unread values and are notified via *Lagged on their next
// Receive.
type Broadcaster[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	capacity int
	next     uint64 // sequence number of the next slot to be written
	closed   bool
}

// New creates a Broadcaster with the given ring capacity.
func New[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Broadcaster[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish appends a value to the ring and wakes all blocked subscribers.
// Count of current subscribers is not tracked here (a Broadcaster with no
// subscribers still happily publishes); the runtime treats "zero
// subscribers" as a successful send.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	b.buf[b.next%uint64(b.capacity)] = v
	b.next++
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Close marks the broadcaster closed; blocked and future Receive calls
// return ok=false once the buffered backlog is drained.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Subscriber reads a private cursor into the shared ring.
type Subscriber[T any] struct {
	b      *Broadcaster[T]
	cursor uint64
}

// Subscribe returns a new Subscriber positioned at the current write head,
// i.e. it only observes values published after this call.
func (b *Broadcaster[T]) Subscribe() *Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &Subscriber[T]{b: b, cursor: b.next}
}

// Receive blocks until a value is available, the broadcaster is closed, or
// ctx-like cancellation is handled by the caller via a separate select
// (Broadcaster does not depend on context so it stays usable from plain
// goroutines). Returns ok=false only once closed and fully drained. If the
// subscriber's cursor has fallen behind the oldest retained value, Receive
// returns a *Lagged error and fast-forwards the cursor to the oldest
// retained value.
func (s *Subscriber[T]) Receive() (T, error, bool) {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		oldest := uint64(0)
		if b.next > uint64(b.capacity) {
			oldest = b.next - uint64(b.capacity)
		}
		if s.cursor < oldest {
			skipped := oldest - s.cursor
			s.cursor = oldest
			var zero T
			return zero, &Lagged{Skipped: skipped}, true
		}
		if s.cursor < b.next {
			v := b.buf[s.cursor%uint64(b.capacity)]
			s.cursor++
			return v, nil, true
		}
		if b.closed {
			var zero T
			return zero, nil, false
		}
		b.cond.Wait()
	}
}

// TryReceive is the non-blocking variant of Receive; ok is false if no
// value is currently available (and the channel is not closed).
func (s *Subscriber[T]) TryReceive() (v T, err error, ok bool) {
	b := s.b
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest := uint64(0)
	if b.next > uint64(b.capacity) {
		oldest = b.next - uint64(b.capacity)
	}
	if s.cursor < oldest {
		skipped := oldest - s.cursor
		s.cursor = oldest
		return v, &Lagged{Skipped: skipped}, true
	}
	if s.cursor < b.next {
		v = b.buf[s.cursor%uint64(b.capacity)]
		s.cursor++
		return v, nil, true
	}
	return v, nil, false
}

// Chan adapts the Subscriber to an idiomatic Go channel consumer, useful
// inside select statements alongside the input channel. The returned
// channel is closed when the broadcaster closes; lag errors are delivered
// inline as a zero value is not distinguishable from a real one, so
// callers needing lag visibility should use Receive directly in a loop
// goroutine instead.
func (s *Subscriber[T]) Chan(done <-chan struct{}) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			v, _, ok := s.Receive()
			if !ok {
				return
			}
			select {
			case out <- v:
			case <-done:
				return
			}
		}
	}()
	return out
}
