package command

import (
	"errors"
	"fmt"
)

var (
	// ErrNotNew is returned when publishing a command that was already
	// submitted (or otherwise left the New state).
	ErrNotNew = errors.New("command is not new")

	// ErrNotBlocked is returned when rerunning a command that is not blocked.
	ErrNotBlocked = errors.New("command is not blocked")

	// ErrProcessorClosed is returned when publishing to a stopped processor.
	ErrProcessorClosed = errors.New("command processor is closed")
)

// TimeoutError reports that a command stayed in a watched state past its
// configured timeout. Phase identifies which watchdog fired.
type TimeoutError struct {
	Phase State
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command exceeded its %s timeout", e.Phase)
}

// FilteredError is the terminal error of a command that was rejected by the
// admission chain, was configured to fail when filtered, and whose rejection
// carried no filter error of its own.
type FilteredError struct{}

func (e *FilteredError) Error() string {
	return "command cannot be started, most likely due to filters"
}

// BlockedError is the terminal error of a command whose CanExecute reported
// false while the command was configured to fail instead of blocking.
type BlockedError struct{}

func (e *BlockedError) Error() string {
	return "command was configured to fail instead of blocking"
}
