package sqlite

import (
	"context"
	"encoding/json"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

type AlertRepository struct {
	db *DB
}

func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

var _ ports.AlertStore = (*AlertRepository)(nil)

func (r *AlertRepository) Insert(ctx context.Context, a *models.Alert) error {
	meta := a.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "alerts.insert", "encode metadata")
	}
	now := nowMillis()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, owner_id, kind, message, metadata_json, created_at)
		VALUES (?,?,?,?,?,?)`, a.ID, a.OwnerID, string(a.Kind), a.Message, string(raw), now)
	if err != nil {
		return persistence(err, "alerts.insert", "insert alert")
	}
	a.CreatedAt = fromMillis(now)
	return nil
}

func (r *AlertRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, kind, message, metadata_json, created_at
		FROM alerts WHERE owner_id=?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, ownerID, limit)
	if err != nil {
		return nil, persistence(err, "alerts.list", "query alerts")
	}
	defer rows.Close()

	out := []models.Alert{}
	for rows.Next() {
		var (
			a          models.Alert
			kind, meta string
			created    int64
		)
		if err := rows.Scan(&a.ID, &a.OwnerID, &kind, &a.Message, &meta, &created); err != nil {
			return nil, persistence(err, "alerts.list", "scan alert")
		}
		a.Kind = models.AlertKind(kind)
		a.CreatedAt = fromMillis(created)
		_ = json.Unmarshal([]byte(meta), &a.Metadata)
		out = append(out, a)
	}
	return out, rows.Err()
}
