package command

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cmdkit/cmdkit/core/logger"
	"github.com/cmdkit/cmdkit/pkg/async"
	"github.com/cmdkit/cmdkit/pkg/broadcast"
)

// Processor orchestrates command lifecycles: it admits published commands
// through the filter chain, routes inbound responses to whichever
// outstanding command claims them, re-evaluates pending commands when the
// chain or the outstanding set changes, and retires commands on terminal
// completion.
//
// Example:
//
//	inputs := make(chan any)
//	processor := command.NewProcessor(inputs, command.NewFilterManager(),
//	    command.WithLogger(logger),
//	)
//	defer processor.Stop()
//
//	cmd := command.New(connectBehavior, command.WithPendingTimeout(5*time.Second))
//	if err := processor.Publish(cmd); err != nil {
//	    return err
//	}
//	err := cmd.Await(ctx)
type Processor struct {
	cfg     Config
	filters *FilterManager
	logger  *slog.Logger
	metrics *Metrics

	mu          sync.Mutex
	outstanding map[*Command]struct{}
	closed      bool

	serial atomic.Int64

	completed  *broadcast.MemoryBroadcaster[*Command]
	admissions chan admissionPass

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	ownFilters bool
}

// admissionPass is one scheduled filter-chain evaluation for a command. The
// generation snapshot lets the command discard the outcome if it moved on
// while the pass was queued or running.
type admissionPass struct {
	cmd *Command
	gen uint64
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLogger configures structured logging for the processor.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithConfig overrides the processor's tuning configuration.
func WithConfig(cfg Config) ProcessorOption {
	return func(p *Processor) {
		p.cfg = cfg.normalize()
	}
}

// WithMetrics attaches metric instruments created via NewMetrics.
func WithMetrics(m *Metrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// NewProcessor creates a processor consuming the given input stream and
// filter chain, and starts its admission workers.
//
// inputs may be nil for a processor that never receives responses (commands
// then complete via WithCompleteAfterExecute, timeouts, or cancellation).
// filters may be nil, in which case the processor owns a fresh chain,
// reachable through Filters.
func NewProcessor(inputs <-chan any, filters *FilterManager, opts ...ProcessorOption) *Processor {
	p := &Processor{
		cfg:         DefaultConfig(),
		filters:     filters,
		logger:      logger.Discard(),
		outstanding: make(map[*Command]struct{}),
		completed:   broadcast.NewMemoryBroadcaster[*Command](64),
	}
	if p.filters == nil {
		p.filters = NewFilterManager()
		p.ownFilters = true
	}

	for _, opt := range opts {
		opt(p)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.admissions = make(chan admissionPass, p.cfg.AdmissionBuffer)

	for range p.cfg.AdmissionWorkers {
		p.wg.Add(1)
		go p.admissionWorker()
	}

	// Membership changes in the chain can turn yesterday's rejection into an
	// approval, so every change re-evaluates the pending commands.
	changes := p.filters.Changed(p.ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for range changes {
			p.traversePending()
		}
	}()

	if inputs != nil {
		p.wg.Add(1)
		go p.routeInputs(inputs)
	}

	return p
}

// Filters returns the admission chain this processor evaluates against.
func (p *Processor) Filters() *FilterManager {
	return p.filters
}

// Publish submits a command for processing. The command must be in StateNew;
// otherwise ErrNotNew is returned and nothing changes. On success the
// command is Pending before Publish returns, holds its serial number, and
// stays in the outstanding set until terminal completion.
func (p *Processor) Publish(cmd *Command) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProcessorClosed
	}
	p.mu.Unlock()

	serial := int(p.serial.Add(1))
	if err := cmd.admit(serial); err != nil {
		return err
	}

	p.mu.Lock()
	p.outstanding[cmd] = struct{}{}
	p.mu.Unlock()

	// Any terminal event retires the command, whichever path produced it.
	cmd.completion.observe(func(ev Event) {
		if ev.Terminal() {
			p.retire(cmd)
		}
	})

	p.metrics.recordPublished(p.ctx)
	p.logger.Debug("command published",
		logger.CommandID(cmd.ID()),
		slog.Int("serial", serial),
	)

	p.enqueueAdmission(cmd)
	return nil
}

// PublishAwait publishes the command and returns a future that settles on
// terminal completion: resolved with the command on success or cancellation,
// rejected with the command's error on failure.
func (p *Processor) PublishAwait(cmd *Command) (*async.Future[*Command], error) {
	fut := async.NewFuture[*Command]()
	cmd.completion.observe(func(ev Event) {
		switch ev.Kind {
		case EventCompleted:
			fut.Resolve(cmd)
		case EventFailed:
			fut.Reject(ev.Err)
		}
	})

	if err := p.Publish(cmd); err != nil {
		return nil, err
	}
	return fut, nil
}

// PublishOrdered publishes the commands under a one-shot sequencing
// constraint: each command is admitted only after its predecessor (in
// ascending Order, ties in argument order) has succeeded. The installed
// filter removes itself once every command in the sequence has succeeded.
//
// If any publish fails the constraint is torn down and the error returned;
// commands published before the failure stay outstanding.
func (p *Processor) PublishOrdered(commands ...*Command) error {
	if len(commands) == 0 {
		return nil
	}

	filter := newOrderedFilter(commands)

	subCtx, unsubscribe := context.WithCancel(p.ctx)
	completions := p.CompletedCommands(subCtx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for cmd := range completions {
			filter.observeCompleted(cmd)
		}
	}()

	var once sync.Once
	filter.finalize = func() {
		once.Do(func() {
			unsubscribe()
			p.filters.Remove(filter)
		})
	}

	p.filters.Add(filter)

	for _, cmd := range commands {
		if err := p.Publish(cmd); err != nil {
			filter.finalize()
			return err
		}
	}
	return nil
}

// Cancel forces the command into Canceled from any non-terminal state and
// removes it from the outstanding set. Idempotent.
func (p *Processor) Cancel(cmd *Command) {
	if cmd.cancel() {
		p.logger.Debug("command canceled", logger.CommandID(cmd.ID()))
	}
}

// CancelAll cancels a snapshot of all currently outstanding commands.
func (p *Processor) CancelAll() {
	for _, cmd := range p.snapshot() {
		p.Cancel(cmd)
	}
}

// CancelGroup cancels every outstanding command whose group equals groupID.
func (p *Processor) CancelGroup(groupID string) {
	for _, cmd := range p.snapshot() {
		if cmd.Group() == groupID {
			p.Cancel(cmd)
		}
	}
}

// RerunBlocked re-admits a Blocked command: it re-enters Pending (re-arming
// its pending watchdog) and goes through the filter chain again, without
// creating a duplicate outstanding entry. Returns ErrNotBlocked if the
// command is in any other state.
func (p *Processor) RerunBlocked(cmd *Command) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProcessorClosed
	}
	p.mu.Unlock()

	if err := cmd.rerun(); err != nil {
		return err
	}

	p.mu.Lock()
	p.outstanding[cmd] = struct{}{}
	p.mu.Unlock()

	p.enqueueAdmission(cmd)
	return nil
}

// CompletedCommands streams commands as they leave the outstanding set, for
// any terminal reason. The channel closes when ctx is cancelled or the
// processor stops.
func (p *Processor) CompletedCommands(ctx context.Context) <-chan *Command {
	sub := p.completed.Subscribe(ctx)
	out := make(chan *Command)

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

// Stop shuts the processor down: admission workers and the input routine
// exit, and the completed-commands stream closes. Outstanding commands are
// left as they are; callers wanting a clean slate should CancelAll first.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.cancel()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Debug("command processor stopped")
		case <-time.After(p.cfg.ShutdownTimeout):
			p.logger.Warn("command processor shutdown timed out")
		}

		_ = p.completed.Close()
		if p.ownFilters {
			_ = p.filters.Close()
		}
	})
}

// retire removes a terminally-completed command from the outstanding set,
// broadcasts it, and re-evaluates the remaining pending commands, since a
// completion may unblock an ordered sequence or a capacity-based filter.
func (p *Processor) retire(cmd *Command) {
	p.mu.Lock()
	_, present := p.outstanding[cmd]
	delete(p.outstanding, cmd)
	p.mu.Unlock()

	if !present {
		return
	}

	p.metrics.recordCompleted(p.ctx, cmd.State())
	p.logger.Debug("command retired",
		logger.CommandID(cmd.ID()),
		logger.CommandState(cmd.State().String()),
	)

	_ = p.completed.Broadcast(p.ctx, broadcast.Message[*Command]{Data: cmd})
	p.traversePending()
}

// snapshot returns a copy-out of the outstanding set.
func (p *Processor) snapshot() []*Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmds := make([]*Command, 0, len(p.outstanding))
	for cmd := range p.outstanding {
		cmds = append(cmds, cmd)
	}
	return cmds
}

// traversePending re-runs admission for every pending command, in ascending
// Order with serial numbers breaking ties, so ordered sequences advance
// deterministically.
func (p *Processor) traversePending() {
	pending := p.snapshot()
	pending = slices.DeleteFunc(pending, func(cmd *Command) bool {
		return cmd.State() != StatePending
	})
	slices.SortStableFunc(pending, func(a, b *Command) int {
		if n := cmp.Compare(a.Order(), b.Order()); n != 0 {
			return n
		}
		return cmp.Compare(a.SerialNumber(), b.SerialNumber())
	})

	for _, cmd := range pending {
		p.enqueueAdmission(cmd)
	}
}

// enqueueAdmission schedules a filter-chain pass for the command. Admission
// never runs inline: a filter may block, or re-enter the processor (for
// example by inspecting outstanding commands), so passes run on dedicated
// workers. When the queue is full the pass overflows to its own goroutine
// rather than blocking or dropping.
func (p *Processor) enqueueAdmission(cmd *Command) {
	if p.ctx.Err() != nil {
		return
	}
	pass := admissionPass{cmd: cmd, gen: cmd.generation()}

	select {
	case p.admissions <- pass:
	default:
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runAdmission(pass)
		}()
	}
}

func (p *Processor) admissionWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case pass := <-p.admissions:
			p.runAdmission(pass)
		}
	}
}

// runAdmission evaluates the filter chain and maps the verdict onto the
// command's next state: approval starts execution; rejection fails the
// command if it opted into strict filtering, and otherwise leaves it
// pending. A filter error counts as a rejection carrying that error.
func (p *Processor) runAdmission(pass admissionPass) {
	start := time.Now()
	ok, err := p.filters.Process(pass.cmd)
	p.metrics.recordAdmission(p.ctx, time.Since(start), ok)

	next := StatePending
	switch {
	case ok:
		next = StateExecuting
	case pass.cmd.failIfFiltered:
		next = StateFailed
	}

	if err != nil {
		p.logger.Debug("filter chain rejected command with error",
			logger.CommandID(pass.cmd.ID()),
			logger.Error(err),
		)
	}

	pass.cmd.startRequest(pass.gen, next, err)
}

// routeInputs consumes the external input stream until it closes or the
// processor stops.
func (p *Processor) routeInputs(inputs <-chan any) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case input, open := <-inputs:
			if !open {
				return
			}
			p.routeInput(input)
		}
	}
}

// routeInput offers the input to each outstanding command, in serial order,
// until one claims it. The claiming command completes successfully and the
// scan stops: at most one command claims each input. Commands whose
// interpreter fails are themselves failed after the scan, without aborting
// routing for the others. An input nobody claims is dropped.
func (p *Processor) routeInput(input any) {
	cmds := p.snapshot()
	slices.SortFunc(cmds, func(a, b *Command) int {
		return cmp.Compare(a.SerialNumber(), b.SerialNumber())
	})

	type failure struct {
		cmd *Command
		err error
	}
	var failures []failure
	claimed := false

	for _, cmd := range cmds {
		ok, err := cmd.interpret(input)
		if err != nil {
			failures = append(failures, failure{cmd: cmd, err: err})
			continue
		}
		if ok {
			cmd.move(StateSucceeded)
			claimed = true
			break
		}
	}

	for _, f := range failures {
		f.cmd.complete(f.err)
	}

	p.metrics.recordInput(p.ctx, claimed)
	if !claimed && len(failures) == 0 {
		p.logger.Debug("input not claimed by any outstanding command")
	}
}
