package command

import (
	"context"
	"slices"
	"sync"
)

// EventKind enumerates completion channel notifications.
type EventKind uint8

const (
	// EventFulfillment is a value notification: the command produced a result.
	// Forever commands emit one per successful cycle.
	EventFulfillment EventKind = iota
	// EventCompleted terminates the channel without an error. Emitted on
	// success and on cancellation.
	EventCompleted
	// EventFailed terminates the channel with the command's error.
	EventFailed
)

// Event is a notification on a command's completion channel.
type Event struct {
	Kind EventKind
	Err  error // set for EventFailed
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind != EventFulfillment
}

// completion is a replaying event stream: zero or more fulfillments followed
// by exactly one terminal event. Late subscribers observe the full history,
// so nothing is lost between construction and subscription.
type completion struct {
	mu       sync.Mutex
	events   []Event
	terminal bool
	changed  chan struct{} // closed and replaced on every append

	// deliverMu serializes observer callbacks so a newly registered observer
	// finishes its history replay before it sees any live event.
	deliverMu sync.Mutex
	observers []func(Event)
}

func newCompletion() *completion {
	return &completion{changed: make(chan struct{})}
}

// emit appends the event and notifies observers and subscribers.
// Events after the terminal one are dropped; returns whether ev was accepted.
func (c *completion) emit(ev Event) bool {
	c.mu.Lock()
	if c.terminal {
		c.mu.Unlock()
		return false
	}
	c.events = append(c.events, ev)
	if ev.Terminal() {
		c.terminal = true
	}
	close(c.changed)
	c.changed = make(chan struct{})
	observers := slices.Clone(c.observers)
	c.mu.Unlock()

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	for _, fn := range observers {
		fn(ev)
	}
	return true
}

// observe registers a synchronous callback, replaying history to it first.
// Observers registered after the terminal event only get the replay.
func (c *completion) observe(fn func(Event)) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	history := slices.Clone(c.events)
	if !c.terminal {
		c.observers = append(c.observers, fn)
	}
	c.mu.Unlock()

	for _, ev := range history {
		fn(ev)
	}
}

// subscribe returns a channel carrying the full event history followed by
// live events. The channel closes after the terminal event has been
// delivered, or when ctx is cancelled.
func (c *completion) subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)
		next := 0
		for {
			c.mu.Lock()
			pending := slices.Clone(c.events[next:])
			terminal := c.terminal
			changed := c.changed
			c.mu.Unlock()

			for _, ev := range pending {
				select {
				case out <- ev:
					next++
				case <-ctx.Done():
					return
				}
			}
			if terminal {
				return
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
