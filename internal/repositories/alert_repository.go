package repositories

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

type AlertRepository struct {
	db *pgxpool.Pool
}

func NewAlertRepository(db *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{db: db}
}

var _ ports.AlertStore = (*AlertRepository)(nil)

func (r *AlertRepository) Insert(ctx context.Context, a *models.Alert) error {
	meta, err := json.Marshal(nonNilMap(a.Metadata))
	if err != nil {
		return errors.Wrap(err, "alerts.insert", "encode metadata")
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO alerts (id, owner_id, kind, message, metadata_json)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, a.ID, a.OwnerID, string(a.Kind), a.Message, meta).Scan(&a.CreatedAt)
	if err != nil {
		return persistence(err, "alerts.insert", "insert alert")
	}
	return nil
}

func (r *AlertRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, kind, message, metadata_json, created_at
		FROM alerts WHERE owner_id=$1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, persistence(err, "alerts.list", "query alerts")
	}
	defer rows.Close()

	out := []models.Alert{}
	for rows.Next() {
		var (
			a    models.Alert
			meta []byte
		)
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Kind, &a.Message, &meta, &a.CreatedAt); err != nil {
			return nil, persistence(err, "alerts.list", "scan alert")
		}
		_ = json.Unmarshal(meta, &a.Metadata)
		out = append(out, a)
	}
	return out, rows.Err()
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
