package worker

import (
	"context"
	"time"

	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
	"clipforge/internal/worker/queue"
)

// Handler processes one task. A non-nil error asks for redelivery.
type Handler interface {
	Process(ctx context.Context, task ports.Task) error
}

// Registry routes tasks to the handler registered for their kind.
type Registry map[string]Handler

type Deps struct {
	Queue    queue.Queue
	Handlers Registry
	// DefaultKind handles tasks that carry no kind.
	DefaultKind string
	Concurrency int
	PopTimeout  time.Duration
	// RetryDelay is the pause before a failed delivery is requeued.
	RetryDelay time.Duration
	Log        *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Concurrency <= 0 {
		d.Concurrency = 1
	}
	if d.PopTimeout <= 0 {
		d.PopTimeout = 30 * time.Second
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = time.Second
	}
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	return d
}
