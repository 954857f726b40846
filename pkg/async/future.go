package async

import (
	"context"
	"sync"
	"time"
)

// Future represents the result of an asynchronous computation.
// It settles exactly once, via Resolve or Reject; later settlements are no-ops.
type Future[T any] struct {
	value T
	err   error
	once  sync.Once
	done  chan struct{}
}

// NewFuture creates an unsettled future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve settles the future with a value. No-op if already settled.
func (f *Future[T]) Resolve(value T) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

// Reject settles the future with an error. No-op if already settled.
func (f *Future[T]) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Await blocks until the future settles or ctx is cancelled.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AwaitWithTimeout blocks until the future settles or the timeout elapses,
// in which case it returns ErrTimeout.
func (f *Future[T]) AwaitWithTimeout(timeout time.Duration) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-time.After(timeout):
		var zero T
		return zero, ErrTimeout
	}
}

// IsComplete reports whether the future has settled, without blocking.
func (f *Future[T]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Go runs fn on a new goroutine and returns a future for its result.
// If ctx is already cancelled the function is not invoked.
func Go[T any](ctx context.Context, fn func(context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()

	go func() {
		select {
		case <-ctx.Done():
			f.Reject(ctx.Err())
			return
		default:
		}

		value, err := fn(ctx)
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(value)
	}()

	return f
}

// All waits for all futures to settle and returns the first error encountered,
// if any.
func All[T any](futures ...*Future[T]) error {
	for _, fut := range futures {
		if _, err := fut.Await(context.Background()); err != nil {
			return err
		}
	}
	return nil
}
