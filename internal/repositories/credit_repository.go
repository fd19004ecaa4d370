package repositories

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

// CreditRepository stores balances in credit_balances. The CHECK constraint
// and the guarded updates below keep every balance at or above zero.
type CreditRepository struct {
	db *pgxpool.Pool
}

func NewCreditRepository(db *pgxpool.Pool) *CreditRepository {
	return &CreditRepository{db: db}
}

var _ ports.CreditLedger = (*CreditRepository)(nil)

func (r *CreditRepository) Balance(ctx context.Context, ownerID string) (int64, error) {
	var bal int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM credit_balances WHERE owner_id=$1`, ownerID).Scan(&bal)
	if err != nil {
		if isNoRows(err) {
			return 0, errors.NotFound("credit account", ownerID)
		}
		return 0, persistence(err, "credits.balance", "select balance")
	}
	return bal, nil
}

func (r *CreditRepository) Decrement(ctx context.Context, ownerID string, n int64) error {
	if n <= 0 {
		return errors.ValidationField("n", "decrement must be positive")
	}
	cmd, err := r.db.Exec(ctx, `
		UPDATE credit_balances
		SET balance = GREATEST(balance - $2, 0), updated_at = now()
		WHERE owner_id = $1
	`, ownerID, n)
	if err != nil {
		return persistence(err, "credits.decrement", "update balance")
	}
	if cmd.RowsAffected() == 0 {
		return errors.NotFound("credit account", ownerID)
	}
	return nil
}

func (r *CreditRepository) Reserve(ctx context.Context, ownerID string, n int64) (bool, error) {
	if n <= 0 {
		return false, errors.ValidationField("n", "reservation must be positive")
	}
	cmd, err := r.db.Exec(ctx, `
		UPDATE credit_balances
		SET balance = balance - $2, updated_at = now()
		WHERE owner_id = $1 AND balance >= $2
	`, ownerID, n)
	if err != nil {
		return false, persistence(err, "credits.reserve", "update balance")
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *CreditRepository) Refund(ctx context.Context, ownerID string, n int64) error {
	if n <= 0 {
		return errors.ValidationField("n", "refund must be positive")
	}
	cmd, err := r.db.Exec(ctx, `
		UPDATE credit_balances
		SET balance = balance + $2, updated_at = now()
		WHERE owner_id = $1
	`, ownerID, n)
	if err != nil {
		return persistence(err, "credits.refund", "update balance")
	}
	if cmd.RowsAffected() == 0 {
		return errors.NotFound("credit account", ownerID)
	}
	return nil
}

func (r *CreditRepository) Grant(ctx context.Context, ownerID string, n int64) (int64, error) {
	if n <= 0 {
		return 0, errors.ValidationField("n", "grant must be positive")
	}
	var bal int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO credit_balances (owner_id, balance) VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE
		SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = now()
		RETURNING balance
	`, ownerID, n).Scan(&bal)
	if err != nil {
		return 0, persistence(err, "credits.grant", "upsert balance")
	}
	return bal, nil
}
