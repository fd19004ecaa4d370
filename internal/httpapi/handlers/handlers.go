// Package handlers implements the clipforge HTTP endpoints. Handlers return
// errors and middleware.WrapHandler turns them into JSON envelopes.
package handlers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/models"
	"clipforge/internal/pkg/logger"
	"clipforge/internal/ports"
)

// JobService is the orchestrator surface the API needs.
type JobService interface {
	Submit(ctx context.Context, ownerID, sourceAssetRef string, params models.JobParameters) (models.JobHandle, error)
	GetStatus(ctx context.Context, jobID, ownerID string) (models.JobView, error)
	ListJobs(ctx context.Context, ownerID string, filter models.JobFilter) ([]models.JobView, error)
}

// JobRouter resolves the service for a kind; "" selects the default.
type JobRouter func(kind string) (JobService, bool)

// URLVerifier checks signed content URLs.
type URLVerifier interface {
	Verify(ref, exp, sig string) error
}

// QueueStats is implemented by queues that can report their depth.
type QueueStats interface {
	Len(ctx context.Context) (queued, inflight int64, err error)
}

// HealthDeps are the dependencies the deep health check pings. Nil fields
// are skipped.
type HealthDeps struct {
	Service  string
	Version  string
	Pool     *pgxpool.Pool
	DB       ports.Pinger
	DBDriver string
	Redis    ports.Pinger
	Queue    QueueStats
}

type Deps struct {
	Jobs     JobRouter
	Assets   ports.AssetCatalog
	Credits  ports.CreditLedger
	Alerts   ports.AlertStore
	SP       ports.StorageProvider
	Verifier URLVerifier
	Health   HealthDeps
	// MaxUploadBytes caps multipart uploads. Defaults to 512 MiB.
	MaxUploadBytes int64
	// AssetURLTTL is the lifetime of URLs from GET /assets/{id}/url.
	AssetURLTTL time.Duration
	Log         *logger.Logger
}

type Handler struct {
	jobs        JobRouter
	assets      ports.AssetCatalog
	credits     ports.CreditLedger
	alerts      ports.AlertStore
	sp          ports.StorageProvider
	verifier    URLVerifier
	health      HealthDeps
	maxUpload   int64
	assetURLTTL time.Duration
	log         *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 512 << 20
	}
	if d.AssetURLTTL <= 0 {
		d.AssetURLTTL = 15 * time.Minute
	}
	if d.Health.Service == "" {
		d.Health.Service = "clipforge-api"
	}
	return &Handler{
		jobs:        d.Jobs,
		assets:      d.Assets,
		credits:     d.Credits,
		alerts:      d.Alerts,
		sp:          d.SP,
		verifier:    d.Verifier,
		health:      d.Health,
		maxUpload:   d.MaxUploadBytes,
		assetURLTTL: d.AssetURLTTL,
		log:         log.WithComponent("httpapi"),
	}
}
