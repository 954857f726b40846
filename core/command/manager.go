package command

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cmdkit/cmdkit/core/logger"
	"github.com/cmdkit/cmdkit/pkg/broadcast"
)

// FilterManager owns the ordered, mutable admission chain. Add and Remove
// are safe to call concurrently with Process: evaluation runs against a
// copy-out snapshot and restarts whenever the chain mutates mid-pass, so a
// result never reflects a partially-mutated chain.
type FilterManager struct {
	mu      sync.Mutex
	filters []Filter
	version atomic.Uint64 // bumped on every mutation, never reset

	logger *slog.Logger

	added   *broadcast.MemoryBroadcaster[Filter]
	removed *broadcast.MemoryBroadcaster[Filter]
	changed *broadcast.MemoryBroadcaster[Filter]
}

// ManagerOption configures a FilterManager.
type ManagerOption func(*FilterManager)

// WithManagerLogger configures structured logging for chain mutations.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *FilterManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewFilterManager creates an empty filter chain.
func NewFilterManager(opts ...ManagerOption) *FilterManager {
	m := &FilterManager{
		logger:  logger.Discard(),
		added:   broadcast.NewMemoryBroadcaster[Filter](16),
		removed: broadcast.NewMemoryBroadcaster[Filter](16),
		changed: broadcast.NewMemoryBroadcaster[Filter](16),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add appends a filter to the chain and notifies observers. An evaluation
// already in flight will observe the addition and restart.
func (m *FilterManager) Add(f Filter) {
	m.mu.Lock()
	m.filters = append(m.filters, f)
	m.version.Add(1)
	m.mu.Unlock()

	m.logger.Debug("filter added", slog.Float64("order", f.Order()))
	ctx := context.Background()
	_ = m.added.Broadcast(ctx, broadcast.Message[Filter]{Data: f})
	_ = m.changed.Broadcast(ctx, broadcast.Message[Filter]{Data: f})
}

// Remove deletes a filter from the chain. Returns whether it was present.
func (m *FilterManager) Remove(f Filter) bool {
	m.mu.Lock()
	idx := slices.Index(m.filters, f)
	if idx >= 0 {
		m.filters = slices.Delete(m.filters, idx, idx+1)
		m.version.Add(1)
	}
	m.mu.Unlock()

	if idx < 0 {
		return false
	}

	m.logger.Debug("filter removed", slog.Float64("order", f.Order()))
	ctx := context.Background()
	_ = m.removed.Broadcast(ctx, broadcast.Message[Filter]{Data: f})
	_ = m.changed.Broadcast(ctx, broadcast.Message[Filter]{Data: f})
	return true
}

// Current returns a copy-out snapshot of the chain in insertion order.
func (m *FilterManager) Current() []Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.filters)
}

// Added streams filters as they join the chain, until ctx is cancelled or
// the manager is closed.
func (m *FilterManager) Added(ctx context.Context) <-chan Filter {
	return drain(ctx, m.added)
}

// Removed streams filters as they leave the chain.
func (m *FilterManager) Removed(ctx context.Context) <-chan Filter {
	return drain(ctx, m.removed)
}

// Changed streams every membership change, additions and removals merged.
func (m *FilterManager) Changed(ctx context.Context) <-chan Filter {
	return drain(ctx, m.changed)
}

// Close shuts down the manager's notification streams.
func (m *FilterManager) Close() error {
	_ = m.added.Close()
	_ = m.removed.Close()
	return m.changed.Close()
}

// Process evaluates the chain against a pending command. A command that is
// not Pending is rejected outright: filtering only applies while awaiting
// admission.
//
// Evaluation is optimistic: each pass snapshots the chain together with the
// mutation counter and walks the snapshot in ascending order. An approval is
// returned only if the counter is unchanged at the end of the walk, so a
// mutation that lands mid-flight always forces this pass to restart — the
// counter is monotonic and compared per call, never cleared, so concurrent
// evaluations cannot mask each other's restarts. Rejections short-circuit
// and are trusted immediately, since adding filters can only reject more,
// never less. There is no retry cap: a tight add/remove loop running
// concurrently with evaluation can starve it, which matches the
// convergence-bounded behavior of this protocol.
func (m *FilterManager) Process(cmd *Command) (bool, error) {
	if cmd.State() != StatePending {
		return false, nil
	}

	for {
		m.mu.Lock()
		snapshot := slices.Clone(m.filters)
		version := m.version.Load()
		m.mu.Unlock()

		slices.SortStableFunc(snapshot, func(a, b Filter) int {
			return cmp.Compare(a.Order(), b.Order())
		})

		idx := 0
		for idx < len(snapshot) && m.version.Load() == version {
			ok, err := processFilter(snapshot[idx], cmd)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
			idx++
		}
		if m.version.Load() == version {
			return true, nil
		}
		// Chain mutated mid-pass: retry against a fresh snapshot.
	}
}

// processFilter runs one filter with panic recovery, so a faulty predicate
// surfaces as an admission error instead of tearing down the caller.
func processFilter(f Filter, cmd *Command) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("filter (order %g) panicked: %v", f.Order(), r)
		}
	}()
	return f.Process(cmd)
}

// drain adapts a broadcast subscription into a plain filter channel.
func drain(ctx context.Context, b *broadcast.MemoryBroadcaster[Filter]) <-chan Filter {
	sub := b.Subscribe(ctx)
	out := make(chan Filter)

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
