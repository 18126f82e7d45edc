package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"piggybank/internal/core"
)

// GetBalance returns the cached balance row for a kid, or nil if no
// balance row exists yet.
func (r *SQLiteRepository) GetBalance(ctx context.Context, kidID int64) (*core.BucketBalance, error) {
	const query = `SELECT kid_id, guardian_id,
		charity_balance, spend_balance, savings_balance, investment_balance,
		updated_at, created_by, updated_by
		FROM bucket_balances WHERE kid_id = ?`

	b, err := r.scanBalance(r.db.QueryRowContext(ctx, query, kidID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	return b, nil
}

// CreateBalance inserts a zero-initialized balance row for a kid.
func (r *SQLiteRepository) CreateBalance(ctx context.Context, b core.BucketBalance) error {
	const query = `INSERT INTO bucket_balances
		(kid_id, guardian_id, charity_balance, spend_balance, savings_balance, investment_balance,
		 total_balance, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		b.KidID, b.GuardianID,
		b.Amounts.Charity.StringFixed(2),
		b.Amounts.Spend.StringFixed(2),
		b.Amounts.Savings.StringFixed(2),
		b.Amounts.Investment.StringFixed(2),
		b.Amounts.Total().StringFixed(2),
		b.UpdatedAt.UTC(), b.CreatedBy, b.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}

	slog.InfoContext(ctx, "Balance row created", "kid_id", b.KidID, "guardian_id", b.GuardianID)
	return nil
}

// UpdateBalance replaces the four buckets and the derived total for a
// kid's balance row.
func (r *SQLiteRepository) UpdateBalance(ctx context.Context, b core.BucketBalance) error {
	const query = `UPDATE bucket_balances SET
		charity_balance = ?, spend_balance = ?, savings_balance = ?, investment_balance = ?,
		total_balance = ?, updated_at = ?, updated_by = ?
		WHERE kid_id = ?`

	res, err := r.db.ExecContext(ctx, query,
		b.Amounts.Charity.StringFixed(2),
		b.Amounts.Spend.StringFixed(2),
		b.Amounts.Savings.StringFixed(2),
		b.Amounts.Investment.StringFixed(2),
		b.Amounts.Total().StringFixed(2),
		b.UpdatedAt.UTC(), b.UpdatedBy, b.KidID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update balance: no row for kid %d", b.KidID)
	}
	return nil
}

// ListBalancesForGuardian returns every balance row owned by a guardian,
// keyed by kid id. Kids without a row are simply absent.
func (r *SQLiteRepository) ListBalancesForGuardian(ctx context.Context, guardianID int64) (map[int64]core.BucketBalance, error) {
	const query = `SELECT kid_id, guardian_id,
		charity_balance, spend_balance, savings_balance, investment_balance,
		updated_at, created_by, updated_by
		FROM bucket_balances WHERE guardian_id = ?`

	rows, err := r.db.QueryContext(ctx, query, guardianID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[int64]core.BucketBalance)
	for rows.Next() {
		b, err := r.scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("list balances: %w", err)
		}
		balances[b.KidID] = *b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}
	return balances, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scanBalance(row rowScanner) (*core.BucketBalance, error) {
	var (
		b              core.BucketBalance
		ch, sp, sv, iv sql.NullString
	)
	err := row.Scan(&b.KidID, &b.GuardianID, &ch, &sp, &sv, &iv,
		&b.UpdatedAt, &b.CreatedBy, &b.UpdatedBy)
	if err != nil {
		return nil, err
	}
	if b.Amounts, err = scanBucketAmounts(ch, sp, sv, iv); err != nil {
		return nil, err
	}
	return &b, nil
}
