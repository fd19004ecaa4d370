package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"clipforge/internal/pkg/logger"
	"clipforge/internal/worker/queue"
)

// Run recovers deliveries orphaned by dead consumers, keeps this consumer's
// lease alive, and consumes the queue with d.Concurrency goroutines until
// ctx is canceled.
func Run(ctx context.Context, d Deps) error {
	d = d.withDefaults()
	log := d.Log.WithComponent("worker")

	n, err := d.Queue.Recover(ctx)
	if err != nil {
		log.Warn("failed to recover in-flight tasks", "error", err.Error())
	} else if n > 0 {
		log.Info("requeued in-flight tasks from dead consumers", "count", n)
	}

	kinds := make([]string, 0, len(d.Handlers))
	for k := range d.Handlers {
		kinds = append(kinds, k)
	}
	log.Info("worker started", "concurrency", d.Concurrency, "kinds", kinds)

	g, gctx := errgroup.WithContext(ctx)
	if l, ok := d.Queue.(queue.Leased); ok {
		g.Go(func() error { return l.KeepAlive(gctx) })
	}
	for i := 0; i < d.Concurrency; i++ {
		clog := &logger.Logger{Logger: log.With("consumer", i)}
		g.Go(func() error {
			return consume(gctx, d, clog)
		})
	}
	err = g.Wait()
	if ctx.Err() != nil {
		log.Info("worker stopped")
		return nil
	}
	return err
}

func consume(ctx context.Context, d Deps, log *logger.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		del, err := d.Queue.Pop(ctx, d.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			sleep(ctx, d.RetryDelay)
			continue
		}
		if del == nil || del.Task.JobID == "" {
			continue
		}

		handle(ctx, d, log, del)
	}
}

func handle(ctx context.Context, d Deps, log *logger.Logger, del *queue.Delivery) {
	task := del.Task
	if task.Kind == "" {
		task.Kind = d.DefaultKind
	}
	jobLog := log.WithJobID(task.JobID)

	h, ok := d.Handlers[task.Kind]
	if !ok {
		jobLog.Error("no pipeline registered for kind, dropping task", "kind", task.Kind)
		ack(ctx, d, jobLog, del)
		return
	}

	jobCtx := logger.ContextWithJobID(ctx, task.JobID)
	jobLog.Info("processing job", "kind", task.Kind)
	start := time.Now()

	err := h.Process(jobCtx, task)
	switch {
	case err == nil:
		jobLog.Info("job processed", "duration_ms", time.Since(start).Milliseconds())
		ack(ctx, d, jobLog, del)
	case ctx.Err() != nil:
		// Left in flight; Recover hands it back on the next start.
		jobLog.Info("job interrupted by shutdown", "duration_ms", time.Since(start).Milliseconds())
	default:
		jobLog.Warn("job will be retried",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		sleep(ctx, d.RetryDelay)
		if err := d.Queue.Nack(context.WithoutCancel(ctx), del); err != nil {
			jobLog.Error("failed to requeue task", "error", err.Error())
		}
	}
}

func ack(ctx context.Context, d Deps, log *logger.Logger, del *queue.Delivery) {
	if err := d.Queue.Ack(context.WithoutCancel(ctx), del); err != nil {
		log.Error("failed to ack task", "error", err.Error())
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
