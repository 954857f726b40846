package command_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdkit/cmdkit/core/command"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("starts in new state", func(t *testing.T) {
		t.Parallel()

		cmd := command.New(nil)
		assert.Equal(t, command.StateNew, cmd.State())
		assert.Zero(t, cmd.SerialNumber())
		assert.True(t, cmd.IssuedAt().IsZero())
		assert.Empty(t, cmd.Traces())
	})

	t.Run("generates unique identifiers", func(t *testing.T) {
		t.Parallel()

		a := command.New(nil)
		b := command.New(nil)
		require.NotEmpty(t, a.ID())
		assert.NotEqual(t, a.ID(), b.ID())
		assert.Contains(t, a.String(), a.ID())
	})

	t.Run("nil behavior gets permissive defaults", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		cmd := command.New(nil, command.WithCompleteAfterExecute())
		require.NoError(t, proc.Publish(cmd))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, cmd.Await(ctx))
		assert.Equal(t, command.StateSucceeded, cmd.State())
	})
}

func TestCommandOptions(t *testing.T) {
	t.Parallel()

	t.Run("group tag", func(t *testing.T) {
		t.Parallel()

		cmd := command.New(nil, command.WithGroup("session-1"))
		assert.Equal(t, "session-1", cmd.Group())
		assert.Empty(t, command.New(nil).Group())
	})

	t.Run("explicit order wins over serial", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		cmd := command.New(nil, command.WithOrder(42), command.WithCompleteAfterExecute())
		require.NoError(t, proc.Publish(cmd))
		assert.Equal(t, 42, cmd.Order())
		assert.NotZero(t, cmd.SerialNumber())
	})

	t.Run("order falls back to serial", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		cmd := command.New(nil, command.WithCompleteAfterExecute())
		require.NoError(t, proc.Publish(cmd))
		assert.Equal(t, cmd.SerialNumber(), cmd.Order())
	})
}

func TestCommandAwait(t *testing.T) {
	t.Parallel()

	t.Run("success returns nil", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		cmd := command.New(command.Funcs{}, command.WithCompleteAfterExecute())
		require.NoError(t, proc.Publish(cmd))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, cmd.Await(ctx))
	})

	t.Run("failure returns the exact execute error", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		sentinel := errors.New("device offline")
		cmd := command.New(command.Funcs{
			ExecuteFunc: func(cmd *command.Command) error { return sentinel },
		})
		require.NoError(t, proc.Publish(cmd))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := cmd.Await(ctx)
		require.ErrorIs(t, err, sentinel)
		assert.Equal(t, command.StateFailed, cmd.State())
	})

	t.Run("cancellation returns nil with canceled state", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		filters := proc.Filters()
		filters.Add(command.NewFilterFunc(0, func(cmd *command.Command) (bool, error) {
			return false, nil
		}))
		defer proc.Stop()

		cmd := command.New(nil)
		require.NoError(t, proc.Publish(cmd))
		proc.Cancel(cmd)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, cmd.Await(ctx))
		assert.Equal(t, command.StateCanceled, cmd.State())
	})

	t.Run("self-driven completion terminates the stream", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		// The behavior signals success on its own instead of claiming an
		// input or completing after execute.
		cmd := command.New(command.Funcs{
			ExecuteFunc: func(c *command.Command) error {
				c.Complete(nil)
				return nil
			},
		})
		require.NoError(t, proc.Publish(cmd))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, cmd.Await(ctx))
	})

	t.Run("panicking execute fails the command", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		cmd := command.New(command.Funcs{
			ExecuteFunc: func(cmd *command.Command) error { panic("boom") },
		})
		require.NoError(t, proc.Publish(cmd))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err := cmd.Await(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "execute panicked")
	})
}

func TestCommandHooks(t *testing.T) {
	t.Parallel()

	t.Run("before execute runs ahead of execute", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		var sequence atomic.Int32
		var beforeAt, executeAt int32
		cmd := command.New(command.Funcs{
			ExecuteFunc: func(cmd *command.Command) error {
				executeAt = sequence.Add(1)
				return nil
			},
		},
			command.WithCompleteAfterExecute(),
			command.WithOnBeforeExecute(func(cmd *command.Command) {
				beforeAt = sequence.Add(1)
			}),
		)
		require.NoError(t, proc.Publish(cmd))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, cmd.Await(ctx))
		assert.Equal(t, int32(1), beforeAt)
		assert.Equal(t, int32(2), executeAt)
	})

	t.Run("on complete fires on success", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		completed := make(chan struct{})
		cmd := command.New(nil,
			command.WithCompleteAfterExecute(),
			command.WithOnComplete(func(cmd *command.Command) { close(completed) }),
		)
		require.NoError(t, proc.Publish(cmd))

		select {
		case <-completed:
		case <-time.After(2 * time.Second):
			t.Fatal("on-complete hook never fired")
		}
	})

	t.Run("on error fires with the failure", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		sentinel := errors.New("refused")
		errs := make(chan error, 1)
		cmd := command.New(command.Funcs{
			ExecuteFunc: func(cmd *command.Command) error { return sentinel },
		},
			command.WithOnError(func(cmd *command.Command, err error) { errs <- err }),
		)
		require.NoError(t, proc.Publish(cmd))

		select {
		case err := <-errs:
			require.ErrorIs(t, err, sentinel)
		case <-time.After(2 * time.Second):
			t.Fatal("on-error hook never fired")
		}
	})
}

func TestCommandSubscribe(t *testing.T) {
	t.Parallel()

	t.Run("late subscriber replays history", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		cmd := command.New(nil, command.WithCompleteAfterExecute())
		require.NoError(t, proc.Publish(cmd))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, cmd.Await(ctx))

		// Subscribing after the fact still yields the full stream.
		var events []command.Event
		for ev := range cmd.Subscribe(ctx) {
			events = append(events, ev)
		}
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.True(t, last.Terminal())
		assert.Equal(t, command.EventCompleted, last.Kind)
	})

	t.Run("failed command terminates the stream with its error", func(t *testing.T) {
		t.Parallel()

		proc := command.NewProcessor(nil, nil)
		defer proc.Stop()

		sentinel := errors.New("broken")
		cmd := command.New(command.Funcs{
			ExecuteFunc: func(cmd *command.Command) error { return sentinel },
		})
		require.NoError(t, proc.Publish(cmd))

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var last command.Event
		for ev := range cmd.Subscribe(ctx) {
			last = ev
		}
		assert.Equal(t, command.EventFailed, last.Kind)
		assert.ErrorIs(t, last.Err, sentinel)
	})
}

func TestCommandStateChanges(t *testing.T) {
	t.Parallel()

	proc := command.NewProcessor(nil, nil)
	defer proc.Stop()

	cmd := command.New(nil, command.WithCompleteAfterExecute())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	changes := cmd.StateChanges(ctx)

	require.NoError(t, proc.Publish(cmd))

	var seen []command.State
	for state := range changes {
		seen = append(seen, state)
	}
	require.NotEmpty(t, seen)
	assert.Equal(t, command.StateSucceeded, seen[len(seen)-1])
}

func TestCommandTraces(t *testing.T) {
	t.Parallel()

	proc := command.NewProcessor(nil, nil)
	defer proc.Stop()

	cmd := command.New(nil, command.WithCompleteAfterExecute())
	require.NoError(t, proc.Publish(cmd))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, cmd.Await(ctx))

	traces := cmd.Traces()
	require.Len(t, traces, 3)
	assert.Equal(t, command.StatePending, traces[0].State)
	assert.Equal(t, command.StateExecuting, traces[1].State)
	assert.Equal(t, command.StateSucceeded, traces[2].State)
	for _, tr := range traces {
		assert.False(t, tr.At.IsZero())
	}
	assert.False(t, cmd.IssuedAt().IsZero())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "new", command.StateNew.String())
	assert.Equal(t, "pending", command.StatePending.String())
	assert.Equal(t, "blocked", command.StateBlocked.String())
	assert.Equal(t, "executing", command.StateExecuting.String())
	assert.Equal(t, "succeeded", command.StateSucceeded.String())
	assert.Equal(t, "failed", command.StateFailed.String())
	assert.Equal(t, "canceled", command.StateCanceled.String())

	assert.False(t, command.StateExecuting.Terminal())
	assert.True(t, command.StateCanceled.Terminal())
}
