package sqlite

import (
	"context"

	"clipforge/internal/models"
	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

type AssetRepository struct {
	db *DB
}

func NewAssetRepository(db *DB) *AssetRepository {
	return &AssetRepository{db: db}
}

var _ ports.AssetCatalog = (*AssetRepository)(nil)

func (r *AssetRepository) Create(ctx context.Context, a *models.Asset) error {
	now := nowMillis()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assets (id, owner_id, provider, object_key, mime, size_bytes, duration_seconds, label, created_at)
		VALUES (?,?,?,?,?,?,?,NULLIF(?, ''),?)`,
		a.ID, a.OwnerID, a.Provider, a.ObjectKey, a.Mime, a.SizeBytes, a.DurationSeconds, a.Label, now)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("asset already exists").WithField("asset_id", a.ID)
		}
		return persistence(err, "assets.create", "insert asset")
	}
	a.CreatedAt = fromMillis(now)
	return nil
}

func (r *AssetRepository) Get(ctx context.Context, ownerID, assetID string) (*models.Asset, error) {
	var (
		a       models.Asset
		created int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, provider, object_key, mime, size_bytes, duration_seconds,
		       COALESCE(label, ''), created_at
		FROM assets WHERE id=? AND owner_id=?`, assetID, ownerID).Scan(
		&a.ID, &a.OwnerID, &a.Provider, &a.ObjectKey, &a.Mime,
		&a.SizeBytes, &a.DurationSeconds, &a.Label, &created,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, errors.NotFound("asset", assetID)
		}
		return nil, persistence(err, "assets.get", "select asset")
	}
	a.CreatedAt = fromMillis(created)
	return &a, nil
}

func (r *AssetRepository) Delete(ctx context.Context, ownerID, assetID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id=? AND owner_id=?`, assetID, ownerID)
	if err != nil {
		return persistence(err, "assets.delete", "delete asset")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistence(err, "assets.delete", "rows affected")
	}
	if n == 0 {
		return errors.NotFound("asset", assetID)
	}
	return nil
}
