package pipeline

import (
	"context"
	"fmt"
	"time"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

// PollConfig bounds PollUntil.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
	// Used is the number of attempts already spent by an earlier delivery.
	Used int
}

// PollFunc performs one poll. attempt counts from 1.
type PollFunc func(ctx context.Context, attempt int) (ports.RenderStatus, error)

// PollUntil waits Interval, calls fn, and repeats until the renderer reports a
// terminal state or MaxAttempts is reached.
//
// Retryable errors from fn are absorbed. A "done" state returns the status;
// a "failed" state returns RenderFailed carrying the provider message; running
// out of attempts returns RenderTimeout. Context cancellation returns ctx.Err().
func PollUntil(ctx context.Context, clock Clock, cfg PollConfig, fn PollFunc) (ports.RenderStatus, error) {
	var lastErr error
	for attempt := cfg.Used + 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ports.RenderStatus{}, ctx.Err()
		case <-clock.After(cfg.Interval):
		}

		st, err := fn(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return ports.RenderStatus{}, ctx.Err()
			}
			if errors.IsRetryable(err) {
				lastErr = err
				continue
			}
			return ports.RenderStatus{}, err
		}

		switch st.State {
		case ports.RenderDone:
			if st.ResultURL == "" {
				return ports.RenderStatus{}, errors.New(errors.CodeRenderFailed, "renderer reported success without a result")
			}
			return st, nil
		case ports.RenderFailed:
			msg := st.Error
			if msg == "" {
				msg = "render failed"
			}
			return ports.RenderStatus{}, errors.New(errors.CodeRenderFailed, msg)
		}
	}

	timeout := errors.New(errors.CodeRenderTimeout,
		fmt.Sprintf("render did not finish within %s", time.Duration(cfg.MaxAttempts)*cfg.Interval)).
		WithField("attempts", cfg.MaxAttempts)
	if lastErr != nil {
		timeout.WithField("last_error", lastErr.Error())
	}
	return ports.RenderStatus{}, timeout
}
