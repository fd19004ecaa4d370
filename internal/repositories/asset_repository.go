package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

// AssetRepository is the owner-scoped source asset catalog.
type AssetRepository struct {
	db *pgxpool.Pool
}

func NewAssetRepository(db *pgxpool.Pool) *AssetRepository {
	return &AssetRepository{db: db}
}

var _ ports.AssetCatalog = (*AssetRepository)(nil)

func (r *AssetRepository) Create(ctx context.Context, a *models.Asset) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO assets (id, owner_id, provider, object_key, mime, size_bytes, duration_seconds, label)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8, ''))
		RETURNING created_at
	`, a.ID, a.OwnerID, a.Provider, a.ObjectKey, a.Mime, a.SizeBytes, a.DurationSeconds, a.Label).
		Scan(&a.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return errors.Conflict("asset already exists").WithField("asset_id", a.ID)
		}
		return persistence(err, "assets.create", "insert asset")
	}
	return nil
}

func (r *AssetRepository) Get(ctx context.Context, ownerID, assetID string) (*models.Asset, error) {
	var a models.Asset
	err := r.db.QueryRow(ctx, `
		SELECT id, owner_id, provider, object_key, mime, size_bytes, duration_seconds,
		       COALESCE(label, ''), created_at
		FROM assets WHERE id=$1 AND owner_id=$2
	`, assetID, ownerID).Scan(
		&a.ID, &a.OwnerID, &a.Provider, &a.ObjectKey, &a.Mime,
		&a.SizeBytes, &a.DurationSeconds, &a.Label, &a.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("asset", assetID)
		}
		return nil, persistence(err, "assets.get", "select asset")
	}
	return &a, nil
}

func (r *AssetRepository) Delete(ctx context.Context, ownerID, assetID string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM assets WHERE id=$1 AND owner_id=$2`, assetID, ownerID)
	if err != nil {
		return persistence(err, "assets.delete", "delete asset")
	}
	if cmd.RowsAffected() == 0 {
		return errors.NotFound("asset", assetID)
	}
	return nil
}
