package ports

import (
	"context"
	"time"

	"clipforge/internal/models"
)

// JobStore is the Job Record Store.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
	ListByOwner(ctx context.Context, ownerID string, filter models.JobFilter) ([]models.Job, error)

	// Transition moves the job to status `to` only if its stored status is a
	// legal predecessor, writing the update fields in the same statement.
	// applied is false when the guard did not match; that is not an error.
	Transition(ctx context.Context, jobID string, to models.JobStatus, upd models.JobUpdate) (applied bool, err error)

	// RecordPoll bumps attempts and updated_at of a job that is polling.
	RecordPoll(ctx context.Context, jobID string) error

	// ListStale returns non-terminal jobs last updated before olderThan.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]models.Job, error)
}

// CreditLedger is the per-owner consumable balance.
type CreditLedger interface {
	Balance(ctx context.Context, ownerID string) (int64, error)
	// Decrement subtracts n, flooring at zero. NotFound if the owner has no row.
	Decrement(ctx context.Context, ownerID string, n int64) error
	// Reserve subtracts n only if the balance covers it. ok is false otherwise.
	Reserve(ctx context.Context, ownerID string, n int64) (ok bool, err error)
	Refund(ctx context.Context, ownerID string, n int64) error
	// Grant adds n, creating the owner row if needed, and returns the new balance.
	Grant(ctx context.Context, ownerID string, n int64) (int64, error)
}

// AlertStore persists user-visible alerts.
type AlertStore interface {
	Insert(ctx context.Context, alert *models.Alert) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.Alert, error)
}

// AssetCatalog is the owner-scoped index of uploaded source assets.
type AssetCatalog interface {
	Create(ctx context.Context, asset *models.Asset) error
	// Get returns NotFound when the asset is missing or owned by someone else.
	Get(ctx context.Context, ownerID, assetID string) (*models.Asset, error)
	Delete(ctx context.Context, ownerID, assetID string) error
}

// Notifier delivers job outcome alerts. Implementations swallow their own
// errors.
type Notifier interface {
	Notify(ctx context.Context, ownerID string, kind models.AlertKind, message string, metadata map[string]any)
}

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
