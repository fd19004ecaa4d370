package main

import (
	"context"
	"net/http"
	"time"

	"clipforge/internal/app"
	"clipforge/internal/config"
	"clipforge/internal/httpapi"
	"clipforge/internal/httpapi/handlers"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/shutdown"
	"clipforge/internal/worker"
	"clipforge/internal/worker/queue"
)

const version = "0.1.0"

func main() {
	lc := logger.DefaultConfig()
	lc.ServiceName = "clipforge-api"
	log := logger.New(lc)

	log.Info("starting clipforge API", "version", version)

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	ctx := context.Background()

	shutdownMgr := shutdown.NewManager(log, cfg.ShutdownTimeout)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.LogFatal("failed to initialize application", err)
	}
	a.RegisterShutdown(shutdownMgr)

	health := handlers.HealthDeps{
		Service:  "clipforge-api",
		Version:  version,
		Pool:     a.Stores.Pool,
		DB:       a.Stores.Pinger,
		DBDriver: a.Stores.Driver,
	}
	if stats, ok := a.Queue.(handlers.QueueStats); ok {
		health.Queue = stats
	}
	if rq, ok := a.Queue.(*queue.RedisQueue); ok {
		health.Redis = rq
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Jobs: func(kind string) (handlers.JobService, bool) {
				p, ok := a.Pipeline(kind)
				if !ok {
					return nil, false
				}
				return p, true
			},
			Assets:   a.Stores.Assets,
			Credits:  a.Stores.Credits,
			Alerts:   a.Stores.Alerts,
			SP:       a.Storage,
			Verifier: a.Signer,
			Health:   health,
			Log:      log,
		},
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Without redis there is no separate worker process to drain the queue.
	if cfg.QueueBackend == config.QueueMemory {
		// Queued tasks do not survive a restart; rebuild them from the job table.
		if n, err := a.RecoverStale(ctx, 0, 1000); err != nil {
			log.Warn("failed to re-enqueue unfinished jobs", "error", err)
		} else if n > 0 {
			log.Info("re-enqueued unfinished jobs", "count", n)
		}

		workerDone := make(chan struct{})
		go func() {
			defer close(workerDone)
			if err := worker.Run(shutdownMgr.Context(), a.WorkerDeps()); err != nil {
				log.Error("in-process worker stopped", "error", err)
			}
		}()
		shutdownMgr.Register("worker", func(ctx context.Context) error {
			select {
			case <-workerDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening",
			"addr", server.Addr,
			"port", cfg.HTTPPort,
			"kinds", a.Kinds(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	if err := shutdownMgr.Wait(); err != nil {
		log.Error("shutdown finished with errors", "error", err)
	}
}
