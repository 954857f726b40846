package command

import "time"

// State is a command's lifecycle state.
type State uint8

const (
	// StateNew is the initial state; it is never re-entered.
	StateNew State = iota
	// StatePending means the command awaits admission by the filter chain.
	StatePending
	// StateBlocked means the command was admitted but reported it cannot
	// execute yet; it stays parked until explicitly rerun.
	StateBlocked
	// StateExecuting means the command has been issued and may be matched
	// against inbound responses.
	StateExecuting
	// StateSucceeded is a terminal success (except for forever commands,
	// which immediately re-arm into StateExecuting).
	StateSucceeded
	// StateFailed is a terminal failure carrying an error.
	StateFailed
	// StateCanceled is the terminal outcome of an external cancellation.
	StateCanceled
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePending:
		return "pending"
	case StateBlocked:
		return "blocked"
	case StateExecuting:
		return "executing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can leave s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// Trace records a single state transition of a command.
type Trace struct {
	At    time.Time
	State State
}
