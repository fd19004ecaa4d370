// Package app assembles the clipforge runtime from configuration: stores,
// asset storage, the task queue and one render pipeline per kind. The API,
// worker and CLI binaries share it.
package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"clipforge/internal/adapters/renderer"
	"clipforge/internal/adapters/storage/signedurl"
	"clipforge/internal/config"
	"clipforge/internal/notify"
	"clipforge/internal/pipeline"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/pkg/shutdown"
	"clipforge/internal/storage"
	"clipforge/internal/worker"
	"clipforge/internal/worker/queue"
)

type App struct {
	Config config.Config
	Log    *logger.Logger

	Stores   *Stores
	Storage  storage.Provider
	Signer   *signedurl.Signer
	Redis    *redis.Client
	Queue    queue.Queue
	Notifier *notify.AlertNotifier

	pipelines map[string]*pipeline.Orchestrator
}

// New connects every dependency. Call Close (or RegisterShutdown) to release them.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log, pipelines: make(map[string]*pipeline.Orchestrator)}

	stores, err := OpenStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.Stores = stores

	log.Info("initializing storage provider")
	sp, signer, err := storage.NewProvider(ctx, cfg.Storage, cfg.PublicBaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("storage provider: %w", err)
	}
	a.Storage, a.Signer = sp, signer
	log.Info("storage provider initialized", "provider", sp.Provider())

	switch cfg.QueueBackend {
	case config.QueueRedis:
		log.Info("connecting to Redis", "addr", cfg.RedisAddr)
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.Queue = queue.NewRedisQueue(a.Redis, cfg.JobQueueName)
		log.Info("Redis connected", "queue", cfg.JobQueueName)
	default:
		a.Queue = queue.NewMemoryQueue()
		log.Info("using in-process job queue")
	}

	a.Notifier = notify.New(stores.Alerts, log)

	for _, kind := range cfg.RenderKinds {
		rc := cfg.RendererFor(kind)
		client := renderer.NewHTTPClient(renderer.Options{
			BaseURL: rc.BaseURL,
			APIKey:  rc.APIKey,
			RPS:     rc.RPS,
			Burst:   rc.Burst,
			Timeout: rc.Timeout,
		})
		a.pipelines[kind] = pipeline.New(pipeline.ConfigFrom(kind, cfg.Pipeline), pipeline.Deps{
			Jobs:      stores.Jobs,
			Assets:    stores.Assets,
			Storage:   sp,
			Renderer:  client,
			Fetcher:   client,
			Credits:   stores.Credits,
			Notifier:  a.Notifier,
			Scheduler: a.Queue,
			Log:       log,
		})
		log.Info("render pipeline registered", "kind", kind, "renderer", rc.BaseURL, "credit_mode", cfg.Pipeline.CreditMode)
	}

	return a, nil
}

// Pipeline returns the orchestrator for kind. An empty kind selects the default.
func (a *App) Pipeline(kind string) (*pipeline.Orchestrator, bool) {
	if kind == "" {
		kind = a.DefaultKind()
	}
	p, ok := a.pipelines[kind]
	return p, ok
}

// DefaultKind is the first configured render kind.
func (a *App) DefaultKind() string {
	if len(a.Config.RenderKinds) == 0 {
		return ""
	}
	return a.Config.RenderKinds[0]
}

// Kinds lists the registered kinds in sorted order.
func (a *App) Kinds() []string {
	out := make([]string, 0, len(a.pipelines))
	for k := range a.pipelines {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Registry exposes the pipelines to the worker.
func (a *App) Registry() worker.Registry {
	reg := make(worker.Registry, len(a.pipelines))
	for k, p := range a.pipelines {
		reg[k] = p
	}
	return reg
}

// WorkerDeps returns worker settings for this app.
func (a *App) WorkerDeps() worker.Deps {
	return worker.Deps{
		Queue:       a.Queue,
		Handlers:    a.Registry(),
		DefaultKind: a.DefaultKind(),
		Concurrency: a.Config.WorkerConcurrency,
		Log:         a.Log,
	}
}

// RecoverStale re-enqueues non-terminal jobs idle for longer than olderThan,
// across every registered kind.
func (a *App) RecoverStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	total := 0
	for _, kind := range a.Kinds() {
		n, err := a.pipelines[kind].Recover(ctx, olderThan, limit)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// RegisterShutdown closes connections in reverse order of opening.
func (a *App) RegisterShutdown(m *shutdown.Manager) {
	m.RegisterSimple("database", a.Stores.Close)
	if a.Redis != nil {
		m.Register("redis", func(ctx context.Context) error { return a.Redis.Close() })
	}
}

// Close releases everything New opened.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	a.Stores.Close()
}
