package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cmdkit/cmdkit/pkg/broadcast"
)

// Command is a single request driven through the lifecycle state machine by a
// Processor. Business logic is supplied through a Behavior; policy (timeouts,
// failure modes, grouping, ordering) is fixed at construction via options.
//
// A Command is safe for concurrent use. State is mutated only through the
// internal transition entry point, which appends a trace entry and notifies
// subscribers for every transition.
type Command struct {
	id       string
	behavior Behavior

	// Policy, immutable after construction.
	failIfFiltered       bool
	failIfBlocked        bool
	executeForever       bool
	completeAfterExecute bool
	pendingTimeout       time.Duration
	executingTimeout     time.Duration
	group                string
	order                int
	hasOrder             bool

	// Lifecycle hooks, immutable after construction.
	onBeforeExecute func(*Command)
	onFulfillment   func(*Command)
	onError         func(*Command, error)
	onComplete      func(*Command)

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped on every transition; guards stale async outcomes
	admitted bool   // one-shot; claimed before the Pending transition runs
	serial   int
	issuedAt time.Time
	traces   []Trace

	completion *completion
	states     *broadcast.MemoryBroadcaster[State]
}

// Option configures a Command at construction time.
type Option func(*Command)

// WithFailIfFiltered makes admission rejection terminal: instead of staying
// Pending for a retry, the command fails with the filter's error (or a
// FilteredError when the rejection carried none).
func WithFailIfFiltered() Option {
	return func(c *Command) { c.failIfFiltered = true }
}

// WithFailIfBlocked makes a false CanExecute terminal: instead of parking as
// Blocked, the command fails with a BlockedError.
func WithFailIfBlocked() Option {
	return func(c *Command) { c.failIfBlocked = true }
}

// WithExecuteForever re-arms the command into Executing after every success
// instead of terminating. Its completion channel emits a fulfillment per
// cycle and never completes on its own.
func WithExecuteForever() Option {
	return func(c *Command) { c.executeForever = true }
}

// WithCompleteAfterExecute completes the command as soon as Execute returns,
// without waiting for a claiming response.
func WithCompleteAfterExecute() Option {
	return func(c *Command) { c.completeAfterExecute = true }
}

// WithPendingTimeout arms a watchdog when the command enters Pending; if it
// is still Pending when the watchdog fires, it fails with a TimeoutError.
func WithPendingTimeout(d time.Duration) Option {
	return func(c *Command) { c.pendingTimeout = d }
}

// WithExecutingTimeout is the Executing-phase counterpart of
// WithPendingTimeout.
func WithExecutingTimeout(d time.Duration) Option {
	return func(c *Command) { c.executingTimeout = d }
}

// WithGroup tags the command for bulk cancellation via CancelGroup.
func WithGroup(group string) Option {
	return func(c *Command) { c.group = group }
}

// WithOrder sets an explicit sequencing key. Without it, Order falls back to
// the serial number assigned at admission.
func WithOrder(order int) Option {
	return func(c *Command) {
		c.order = order
		c.hasOrder = true
	}
}

// WithOnBeforeExecute runs fn after CanExecute approves and before Execute.
func WithOnBeforeExecute(fn func(*Command)) Option {
	return func(c *Command) { c.onBeforeExecute = fn }
}

// WithOnFulfillment runs fn on every fulfillment event.
func WithOnFulfillment(fn func(*Command)) Option {
	return func(c *Command) { c.onFulfillment = fn }
}

// WithOnError runs fn when the command terminates with an error.
func WithOnError(fn func(*Command, error)) Option {
	return func(c *Command) { c.onError = fn }
}

// WithOnComplete runs fn when the command's completion channel terminates
// without an error (success or cancellation).
func WithOnComplete(fn func(*Command)) Option {
	return func(c *Command) { c.onComplete = fn }
}

// New creates a command in StateNew. A nil behavior gets permissive defaults
// (always executable, no-op execution, claims nothing).
func New(behavior Behavior, opts ...Option) *Command {
	if behavior == nil {
		behavior = Funcs{}
	}

	c := &Command{
		id:         uuid.New().String(),
		behavior:   behavior,
		state:      StateNew,
		completion: newCompletion(),
		states:     broadcast.NewMemoryBroadcaster[State](16),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Lifecycle hooks are driven off the completion channel, so they observe
	// exactly what external subscribers observe.
	c.completion.observe(func(ev Event) {
		switch ev.Kind {
		case EventFulfillment:
			if c.onFulfillment != nil {
				c.onFulfillment(c)
			}
		case EventFailed:
			if c.onError != nil {
				c.onError(c, ev.Err)
			}
		case EventCompleted:
			if c.onComplete != nil {
				c.onComplete(c)
			}
		}
		if ev.Terminal() {
			c.states.Close()
		}
	})

	return c
}

// ID returns the command's unique identifier, generated at construction.
func (c *Command) ID() string { return c.id }

// Group returns the bulk-cancellation group, if any.
func (c *Command) Group() string { return c.group }

// State returns the current lifecycle state.
func (c *Command) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SerialNumber returns the monotonic number assigned at first admission,
// or zero if the command has not been published yet.
func (c *Command) SerialNumber() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serial
}

// Order returns the sequencing key: the explicit order if one was set,
// otherwise the serial number.
func (c *Command) Order() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasOrder {
		return c.order
	}
	return c.serial
}

// IssuedAt returns when the command first entered Executing, or the zero
// time if it never has.
func (c *Command) IssuedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issuedAt
}

// Traces returns a copy of the transition history.
func (c *Command) Traces() []Trace {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Trace, len(c.traces))
	copy(out, c.traces)
	return out
}

func (c *Command) String() string {
	return "command " + c.id
}

// Subscribe returns the command's completion channel: zero or more
// fulfillment events followed by exactly one terminal event. Late
// subscribers observe the full history. The channel closes after the
// terminal event, or when ctx is cancelled.
func (c *Command) Subscribe(ctx context.Context) <-chan Event {
	return c.completion.subscribe(ctx)
}

// StateChanges streams state transitions happening after the call; it does
// not replay. Delivery is best-effort for slow consumers, and the channel
// closes once the command reaches a terminal state.
func (c *Command) StateChanges(ctx context.Context) <-chan State {
	sub := c.states.Subscribe(ctx)
	out := make(chan State)

	go func() {
		defer close(out)
		for msg := range sub.Receive(ctx) {
			select {
			case out <- msg.Data:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Await blocks until the command terminates and returns its error, if any.
// Success and cancellation both return nil.
func (c *Command) Await(ctx context.Context) error {
	for ev := range c.Subscribe(ctx) {
		if ev.Terminal() {
			return ev.Err
		}
	}
	return ctx.Err()
}

// Complete signals a self-driven outcome from behavior code that completes
// outside the normal response-routing flow (for example a command holding its
// own subscription). A non-nil err fails the command with exactly that error;
// a nil err terminates the completion channel successfully without changing
// the current state. This is the only state-affecting entry point behavior
// implementations may call.
func (c *Command) Complete(err error) {
	c.complete(err)
}

// generation returns the transition counter, used to detect that a command
// moved on between scheduling an admission pass and applying its outcome.
func (c *Command) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// transition is the single mutation entry point. It applies the change under
// the lock, appends a trace entry, then runs the state's entry effects
// outside the lock: subscriber notification, watchdog arming, fulfillment
// signalling, and the Succeeded->Executing re-arm for forever commands.
//
// guard, when non-nil, must approve the current state for the transition to
// apply. Transitions out of a terminal state and self-loops are no-ops.
// Returns whether the transition was applied.
func (c *Command) transition(to State, guard func(State) bool) bool {
	applied := false
	for {
		c.mu.Lock()
		cur := c.state
		rearm := applied && cur == StateSucceeded && to == StateExecuting
		if (guard != nil && !guard(cur)) || cur == to || (cur.Terminal() && !rearm) {
			c.mu.Unlock()
			return applied
		}
		c.state = to
		c.gen++
		c.traces = append(c.traces, Trace{At: time.Now(), State: to})
		if to == StateExecuting && c.issuedAt.IsZero() {
			c.issuedAt = time.Now()
		}
		c.mu.Unlock()
		applied = true

		_ = c.states.Broadcast(context.Background(), broadcast.Message[State]{Data: to})

		switch to {
		case StatePending:
			if c.pendingTimeout > 0 {
				c.armWatchdog(StatePending, c.pendingTimeout)
			}
		case StateExecuting:
			if c.executingTimeout > 0 {
				c.armWatchdog(StateExecuting, c.executingTimeout)
			}
		case StateSucceeded:
			c.completion.emit(Event{Kind: EventFulfillment})
			if c.executeForever {
				to = StateExecuting
				guard = nil
				continue
			}
			c.completion.emit(Event{Kind: EventCompleted})
		}
		return true
	}
}

func (c *Command) move(to State) bool {
	return c.transition(to, nil)
}

func (c *Command) moveIf(from, to State) bool {
	return c.transition(to, func(s State) bool { return s == from })
}

// armWatchdog schedules a one-shot timer for the given phase. The timer is
// never cancelled: a state check at fire time makes stale timers inert.
func (c *Command) armWatchdog(phase State, d time.Duration) {
	time.AfterFunc(d, func() {
		if c.State() == phase {
			c.complete(&TimeoutError{Phase: phase})
		}
	})
}

// complete terminates the command: a non-nil error moves it to Failed and
// fails the completion channel with exactly that error; a nil error
// terminates the channel successfully without changing state.
func (c *Command) complete(err error) {
	if err != nil {
		if c.move(StateFailed) {
			c.completion.emit(Event{Kind: EventFailed, Err: err})
		}
		return
	}
	c.completion.emit(Event{Kind: EventCompleted})
}

// cancel forces the terminal Canceled state from any non-terminal state and
// terminates the completion channel without an error. Returns whether the
// command was actually cancelled by this call.
func (c *Command) cancel() bool {
	if !c.move(StateCanceled) {
		return false
	}
	c.completion.emit(Event{Kind: EventCompleted})
	return true
}

// admit moves a New command to Pending and assigns its serial number. The
// admitted marker is claimed in the same critical section as the state
// check, so racing callers cannot both pass it while the Pending transition
// is still in flight: the serial is assigned exactly once.
func (c *Command) admit(serial int) error {
	c.mu.Lock()
	if c.state != StateNew || c.admitted {
		cur := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotNew, cur)
	}
	c.admitted = true
	c.serial = serial
	c.mu.Unlock()

	c.move(StatePending)
	return nil
}

// rerun moves a Blocked command back to Pending for re-admission.
func (c *Command) rerun() error {
	if !c.moveIf(StateBlocked, StatePending) {
		return fmt.Errorf("%w (state %s)", ErrNotBlocked, c.State())
	}
	return nil
}

// startRequest applies the outcome of an admission pass. The gen snapshot
// taken when the pass was scheduled guards against applying a stale outcome
// after the command has moved on (cancellation, rerun, or a concurrent pass).
func (c *Command) startRequest(gen uint64, next State, admissionErr error) {
	c.mu.Lock()
	stale := c.gen != gen || c.state.Terminal()
	c.mu.Unlock()
	if stale {
		return
	}

	switch next {
	case StateExecuting:
		if c.moveIf(StatePending, StateExecuting) {
			c.runExecuteSequence()
		}
	case StateFailed:
		if admissionErr == nil {
			admissionErr = &FilteredError{}
		}
		c.complete(admissionErr)
	default:
		// Rejected without fail-on-filter: the command stays Pending and is
		// retried on the next filter-chain change or completion event.
	}
}

// runExecuteSequence drives the Executing entry protocol: CanExecute, the
// before-execute hook, Execute, and the optional immediate completion.
// Any error or panic from behavior code terminates the command with it.
func (c *Command) runExecuteSequence() {
	ok, err := c.safeCanExecute()
	if err != nil {
		c.complete(err)
		return
	}
	if !ok {
		if c.failIfBlocked {
			c.complete(&BlockedError{})
			return
		}
		c.moveIf(StateExecuting, StateBlocked)
		return
	}

	if err := c.safeBeforeExecute(); err != nil {
		c.complete(err)
		return
	}
	if err := c.safeExecute(); err != nil {
		c.complete(err)
		return
	}
	if c.completeAfterExecute {
		c.moveIf(StateExecuting, StateSucceeded)
	}
}

// interpret offers an inbound input to the behavior, converting panics into
// errors.
func (c *Command) interpret(input any) (claimed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			claimed = false
			err = fmt.Errorf("%s: interpret response panicked: %v", c, r)
		}
	}()
	return c.behavior.InterpretResponse(c, input)
}

func (c *Command) safeCanExecute() (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("%s: can-execute panicked: %v", c, r)
		}
	}()
	return c.behavior.CanExecute(c)
}

func (c *Command) safeBeforeExecute() (err error) {
	if c.onBeforeExecute == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: before-execute hook panicked: %v", c, r)
		}
	}()
	c.onBeforeExecute(c)
	return nil
}

func (c *Command) safeExecute() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: execute panicked: %v", c, r)
		}
	}()
	return c.behavior.Execute(c)
}
