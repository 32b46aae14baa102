// Package bus provides single-slot conflating publish/subscribe channels.
//
// Each bus holds at most the most recent unconsumed value: publishing
// overwrites anything still sitting in the slot. Subscribers therefore never
// observe a backlog, only the newest emission: a stale dialog or error must
// not surface after a newer one has arrived.
package bus

import "sync"

// Conflating is a bounded channel of capacity one with overwrite-on-full
// semantics.
type Conflating[T any] struct {
	mu sync.Mutex
	ch chan T
}

func New[T any]() *Conflating[T] {
	return &Conflating[T]{ch: make(chan T, 1)}
}

// Publish stores v as the current value, discarding any unconsumed
// predecessor. Never blocks.
func (b *Conflating[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.ch:
	default:
	}
	b.ch <- v
}

// C returns the receive channel. Multiple receivers compete for each value;
// the intended use is one consumer per bus.
func (b *Conflating[T]) C() <-chan T {
	return b.ch
}

// TryReceive drains the slot without blocking.
func (b *Conflating[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case v := <-b.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
