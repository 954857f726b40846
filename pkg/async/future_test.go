package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmdkit/cmdkit/pkg/async"
)

func TestFuture(t *testing.T) {
	t.Parallel()

	t.Run("resolve settles the future", func(t *testing.T) {
		t.Parallel()

		fut := async.NewFuture[int]()
		fut.Resolve(42)

		v, err := fut.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.True(t, fut.IsComplete())
	})

	t.Run("reject settles the future", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("boom")
		fut := async.NewFuture[int]()
		fut.Reject(wantErr)

		_, err := fut.Await(context.Background())
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("first settlement wins", func(t *testing.T) {
		t.Parallel()

		fut := async.NewFuture[string]()
		fut.Resolve("first")
		fut.Reject(errors.New("too late"))
		fut.Resolve("also too late")

		v, err := fut.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "first", v)
	})

	t.Run("await respects context cancellation", func(t *testing.T) {
		t.Parallel()

		fut := async.NewFuture[int]()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := fut.Await(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("await with timeout returns ErrTimeout", func(t *testing.T) {
		t.Parallel()

		fut := async.NewFuture[int]()

		_, err := fut.AwaitWithTimeout(10 * time.Millisecond)
		assert.ErrorIs(t, err, async.ErrTimeout)
	})

	t.Run("is complete reports pending state", func(t *testing.T) {
		t.Parallel()

		fut := async.NewFuture[int]()
		assert.False(t, fut.IsComplete())
	})
}

func TestGo(t *testing.T) {
	t.Parallel()

	t.Run("runs function and resolves", func(t *testing.T) {
		t.Parallel()

		fut := async.Go(context.Background(), func(context.Context) (string, error) {
			return "done", nil
		})

		v, err := fut.Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "done", v)
	})

	t.Run("propagates function error", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("failed")
		fut := async.Go(context.Background(), func(context.Context) (int, error) {
			return 0, wantErr
		})

		_, err := fut.Await(context.Background())
		assert.ErrorIs(t, err, wantErr)
	})

	t.Run("skips function when context is pre-cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		called := false
		fut := async.Go(ctx, func(context.Context) (int, error) {
			called = true
			return 1, nil
		})

		_, err := fut.Await(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}

func TestAll(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when all succeed", func(t *testing.T) {
		t.Parallel()

		a := async.NewFuture[int]()
		b := async.NewFuture[int]()
		a.Resolve(1)
		b.Resolve(2)

		assert.NoError(t, async.All(a, b))
	})

	t.Run("returns first error", func(t *testing.T) {
		t.Parallel()

		wantErr := errors.New("boom")
		a := async.NewFuture[int]()
		b := async.NewFuture[int]()
		a.Reject(wantErr)
		b.Resolve(2)

		assert.ErrorIs(t, async.All(a, b), wantErr)
	})
}
