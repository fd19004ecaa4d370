package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

func script(steps ...pollStep) (PollFunc, *[]int) {
	var seen []int
	return func(_ context.Context, attempt int) (ports.RenderStatus, error) {
		seen = append(seen, attempt)
		i := len(seen) - 1
		if i >= len(steps) {
			i = len(steps) - 1
		}
		return steps[i].status, steps[i].err
	}, &seen
}

func TestPollUntil(t *testing.T) {
	cfg := PollConfig{Interval: 5 * time.Second, MaxAttempts: 4}

	t.Run("done after two polls", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(0, 0)}
		fn, seen := script(rendering(), done())
		st, err := PollUntil(context.Background(), clock, cfg, fn)
		require.NoError(t, err)
		assert.Equal(t, resultURL, st.ResultURL)
		assert.Equal(t, []int{1, 2}, *seen)
		assert.Equal(t, time.Unix(10, 0), clock.Now())
	})

	t.Run("failed state is terminal", func(t *testing.T) {
		fn, seen := script(pollStep{status: ports.RenderStatus{State: ports.RenderFailed, Error: "bad input"}})
		_, err := PollUntil(context.Background(), &fakeClock{}, cfg, fn)
		assert.True(t, errors.IsCode(err, errors.CodeRenderFailed))
		assert.Equal(t, "bad input", errors.GetMessage(err))
		assert.Len(t, *seen, 1)
	})

	t.Run("done without url", func(t *testing.T) {
		fn, _ := script(pollStep{status: ports.RenderStatus{State: ports.RenderDone}})
		_, err := PollUntil(context.Background(), &fakeClock{}, cfg, fn)
		assert.True(t, errors.IsCode(err, errors.CodeRenderFailed))
	})

	t.Run("ceiling", func(t *testing.T) {
		fn, seen := script(rendering())
		_, err := PollUntil(context.Background(), &fakeClock{}, cfg, fn)
		assert.True(t, errors.IsCode(err, errors.CodeRenderTimeout))
		assert.Len(t, *seen, 4)
	})

	t.Run("retryable errors count against the ceiling", func(t *testing.T) {
		fn, seen := script(pollStep{err: errors.New(errors.CodeRenderUnavailable, "eof")})
		_, err := PollUntil(context.Background(), &fakeClock{}, cfg, fn)
		assert.True(t, errors.IsCode(err, errors.CodeRenderTimeout))
		assert.Contains(t, errors.GetFields(err)["last_error"], "eof")
		assert.Len(t, *seen, 4)
	})

	t.Run("non-retryable error stops", func(t *testing.T) {
		fn, seen := script(pollStep{err: errors.New(errors.CodePersistence, "disk full")})
		_, err := PollUntil(context.Background(), &fakeClock{}, cfg, fn)
		assert.True(t, errors.IsCode(err, errors.CodePersistence))
		assert.Len(t, *seen, 1)
	})

	t.Run("resumes with remaining budget", func(t *testing.T) {
		fn, seen := script(rendering())
		resumed := cfg
		resumed.Used = 3
		_, err := PollUntil(context.Background(), &fakeClock{}, resumed, fn)
		assert.True(t, errors.IsCode(err, errors.CodeRenderTimeout))
		assert.Equal(t, []int{4}, *seen)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		fn, seen := script(done())
		_, err := PollUntil(ctx, RealClock{}, PollConfig{Interval: time.Hour, MaxAttempts: 2}, fn)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, *seen)
	})
}
