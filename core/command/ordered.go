package command

import (
	"cmp"
	"slices"
	"sync"
)

// orderedFilter encodes "command N may execute only after command N-1
// succeeded" for a fixed set of commands. Commands outside the set pass
// untouched. Admission decisions read the predecessor's state directly, so
// they never depend on notification delivery; the processor's
// completed-commands stream is consumed only to detect when the whole
// sequence has succeeded and the filter can remove itself from the chain,
// via the injected finalize callback.
type orderedFilter struct {
	mu        sync.Mutex
	sequence  []*Command // ascending Order, ties in submission order
	done      map[*Command]bool
	finalize  func()
	finalized bool
}

func newOrderedFilter(commands []*Command) *orderedFilter {
	sequence := slices.Clone(commands)
	slices.SortStableFunc(sequence, func(a, b *Command) int {
		return cmp.Compare(a.Order(), b.Order())
	})

	done := make(map[*Command]bool, len(sequence))
	for _, cmd := range sequence {
		done[cmd] = false
	}

	return &orderedFilter{
		sequence: sequence,
		done:     done,
	}
}

func (f *orderedFilter) Order() float64 { return 0 }

func (f *orderedFilter) Process(cmd *Command) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, tracked := f.done[cmd]; !tracked {
		return true, nil
	}
	idx := slices.Index(f.sequence, cmd)
	if idx <= 0 {
		return true, nil
	}
	return f.sequence[idx-1].State() == StateSucceeded, nil
}

// observeCompleted consumes the completed-commands stream to drive
// finalization. Only successful completions count; a failed or cancelled
// member leaves the filter in place, holding back its successors.
func (f *orderedFilter) observeCompleted(cmd *Command) {
	if cmd.State() != StateSucceeded {
		return
	}

	f.mu.Lock()
	if f.finalized {
		f.mu.Unlock()
		return
	}
	if _, tracked := f.done[cmd]; !tracked {
		f.mu.Unlock()
		return
	}
	f.done[cmd] = true

	allDone := true
	for _, ok := range f.done {
		if !ok {
			allDone = false
			break
		}
	}
	if allDone {
		f.finalized = true
	}
	f.mu.Unlock()

	if allDone && f.finalize != nil {
		f.finalize()
	}
}
