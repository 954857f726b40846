package broadcast

import (
	"context"
	"sync"
)

// MemoryBroadcaster is an in-process Broadcaster implementation.
// It optimizes for read-heavy broadcast operations with a read-write mutex;
// subscription changes take the write lock.
type MemoryBroadcaster[T any] struct {
	mu         sync.RWMutex
	subs       map[*memorySubscriber[T]]struct{}
	bufferSize int
	closed     bool
}

// NewMemoryBroadcaster creates an in-memory broadcaster. Each subscriber gets
// its own buffered channel of the given size.
func NewMemoryBroadcaster[T any](bufferSize int) *MemoryBroadcaster[T] {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &MemoryBroadcaster[T]{
		subs:       make(map[*memorySubscriber[T]]struct{}),
		bufferSize: bufferSize,
	}
}

// Broadcast delivers msg to every active subscriber without blocking.
// Subscribers whose buffer is full miss the message.
func (b *MemoryBroadcaster[T]) Broadcast(ctx context.Context, msg Message[T]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBroadcasterClosed
	}

	for sub := range b.subs {
		select {
		case sub.ch <- msg:
		default:
			// Slow consumer, drop rather than block the broadcast.
		}
	}
	return nil
}

// Subscribe registers a subscriber that is torn down when ctx is cancelled.
// Subscribing to a closed broadcaster returns a subscriber whose channel is
// already closed.
func (b *MemoryBroadcaster[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := &memorySubscriber[T]{
		ch:     make(chan Message[T], b.bufferSize),
		parent: b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	sub.stop = context.AfterFunc(ctx, func() { _ = sub.Close() })
	return sub
}

// Close shuts down the broadcaster and closes all subscriber channels.
// Close is idempotent.
func (b *MemoryBroadcaster[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for sub := range b.subs {
		sub.closed = true
		close(sub.ch)
	}
	b.subs = nil
	return nil
}

type memorySubscriber[T any] struct {
	ch     chan Message[T]
	parent *MemoryBroadcaster[T]
	stop   func() bool
	closed bool // guarded by parent.mu
}

// Receive returns the delivery channel. The ctx parameter is accepted for
// interface symmetry; cancellation is handled by the subscription context.
func (s *memorySubscriber[T]) Receive(_ context.Context) <-chan Message[T] {
	return s.ch
}

// Close unregisters the subscriber from its broadcaster and closes the
// delivery channel. Close is idempotent and safe to call concurrently with
// Broadcast.
func (s *memorySubscriber[T]) Close() error {
	if s.stop != nil {
		s.stop()
	}

	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	delete(s.parent.subs, s)
	close(s.ch)
	return nil
}
