package broadcast

import (
	"context"
	"errors"
)

var (
	// ErrBroadcasterClosed is returned when broadcasting to a closed broadcaster.
	ErrBroadcasterClosed = errors.New("broadcaster is closed")

	// ErrSubscriberClosed is returned when operating on a closed subscriber.
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

// Message wraps a broadcast payload. The wrapper keeps the subscriber channel
// type stable if metadata is ever added alongside the payload.
type Message[T any] struct {
	Data T
}

// Broadcaster sends messages to multiple subscribers.
type Broadcaster[T any] interface {
	// Broadcast delivers a message to all active subscribers.
	// Delivery is non-blocking: subscribers with full buffers are skipped.
	Broadcast(ctx context.Context, msg Message[T]) error

	// Subscribe registers a new subscriber. The subscription is cleaned up
	// automatically when ctx is cancelled.
	Subscribe(ctx context.Context) Subscriber[T]

	// Close shuts down the broadcaster and closes all subscriber channels.
	Close() error
}

// Subscriber receives broadcast messages.
type Subscriber[T any] interface {
	// Receive returns the channel messages are delivered on. The channel is
	// closed when the subscriber or its broadcaster is closed.
	Receive(ctx context.Context) <-chan Message[T]

	// Close unregisters the subscriber and closes its channel.
	Close() error
}
