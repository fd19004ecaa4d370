package sqlite

import (
	"context"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/ports"
)

type CreditRepository struct {
	db *DB
}

func NewCreditRepository(db *DB) *CreditRepository {
	return &CreditRepository{db: db}
}

var _ ports.CreditLedger = (*CreditRepository)(nil)

func (r *CreditRepository) Balance(ctx context.Context, ownerID string) (int64, error) {
	var bal int64
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM credit_balances WHERE owner_id=?`, ownerID).Scan(&bal)
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
	return r.update(ctx, "credits.decrement", `
		UPDATE credit_balances SET balance = MAX(balance - ?, 0), updated_at = ?
		WHERE owner_id = ?`, n, nowMillis(), ownerID)
}

func (r *CreditRepository) Reserve(ctx context.Context, ownerID string, n int64) (bool, error) {
	if n <= 0 {
		return false, errors.ValidationField("n", "reservation must be positive")
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE credit_balances SET balance = balance - ?, updated_at = ?
		WHERE owner_id = ? AND balance >= ?`, n, nowMillis(), ownerID, n)
	if err != nil {
		return false, persistence(err, "credits.reserve", "update balance")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, persistence(err, "credits.reserve", "rows affected")
	}
	return rows == 1, nil
}

func (r *CreditRepository) Refund(ctx context.Context, ownerID string, n int64) error {
	if n <= 0 {
		return errors.ValidationField("n", "refund must be positive")
	}
	return r.update(ctx, "credits.refund", `
		UPDATE credit_balances SET balance = balance + ?, updated_at = ?
		WHERE owner_id = ?`, n, nowMillis(), ownerID)
}

func (r *CreditRepository) Grant(ctx context.Context, ownerID string, n int64) (int64, error) {
	if n <= 0 {
		return 0, errors.ValidationField("n", "grant must be positive")
	}
	var bal int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO credit_balances (owner_id, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (owner_id) DO UPDATE
		SET balance = balance + excluded.balance, updated_at = excluded.updated_at
		RETURNING balance`, ownerID, n, nowMillis()).Scan(&bal)
	if err != nil {
		return 0, persistence(err, "credits.grant", "upsert balance")
	}
	return bal, nil
}

func (r *CreditRepository) update(ctx context.Context, op, query string, args ...any) error {
	ownerID, _ := args[len(args)-1].(string)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence(err, op, "update balance")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return persistence(err, op, "rows affected")
	}
	if rows == 0 {
		return errors.NotFound("credit account", ownerID)
	}
	return nil
}
