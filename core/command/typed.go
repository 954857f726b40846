package command

import (
	"slices"
	"sync"

	"github.com/cmdkit/cmdkit/pkg/async"
)

// Typed pairs a Command with a typed return value. The behavior sets the
// result (typically from Execute or InterpretResponse); each fulfillment
// snapshots the current result, so a forever command yields one value per
// cycle.
type Typed[T any] struct {
	*Command

	mu     sync.Mutex
	result T
}

// NewTyped creates a typed command. It shares the Command lifecycle
// contract entirely; only result handling is added.
func NewTyped[T any](behavior Behavior, opts ...Option) *Typed[T] {
	return &Typed[T]{Command: New(behavior, opts...)}
}

// SetResult stores the value carried by subsequent fulfillments.
func (t *Typed[T]) SetResult(value T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.result = value
}

// Result returns the most recently stored value.
func (t *Typed[T]) Result() T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// PublishTyped publishes a typed command and returns a future that collects
// one result per fulfillment and settles at terminal completion: resolved
// with the collected values on success or cancellation, rejected with the
// command's error on failure.
func PublishTyped[T any](p *Processor, cmd *Typed[T]) (*async.Future[[]T], error) {
	fut := async.NewFuture[[]T]()

	var mu sync.Mutex
	var values []T
	cmd.completion.observe(func(ev Event) {
		switch ev.Kind {
		case EventFulfillment:
			mu.Lock()
			values = append(values, cmd.Result())
			mu.Unlock()
		case EventCompleted:
			mu.Lock()
			collected := slices.Clone(values)
			mu.Unlock()
			fut.Resolve(collected)
		case EventFailed:
			fut.Reject(ev.Err)
		}
	})

	if err := p.Publish(cmd.Command); err != nil {
		return nil, err
	}
	return fut, nil
}
