package main

import (
	"context"

	"clipforge/internal/app"
	"clipforge/internal/config"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/shutdown"
	"clipforge/internal/worker"
)

func main() {
	lc := logger.DefaultConfig()
	lc.ServiceName = "clipforge-worker"
	log := logger.New(lc)

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	if cfg.QueueBackend != config.QueueRedis {
		log.Error("the standalone worker needs QUEUE_BACKEND=redis; the API runs its own worker otherwise")
		return
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.LogFatal("failed to initialize application", err)
	}
	a.RegisterShutdown(shutdownMgr)

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(shutdownMgr.Context(), a.WorkerDeps())
	}()
	shutdownMgr.Register("worker", func(ctx context.Context) error {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	log.Info("clipforge worker started", "kinds", a.Kinds(), "concurrency", cfg.WorkerConcurrency)
	if err := shutdownMgr.Wait(); err != nil {
		log.Error("shutdown finished with errors", "error", err)
	}
}
