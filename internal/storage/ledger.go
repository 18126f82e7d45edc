package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"piggybank/internal/core"

	"github.com/shopspring/decimal"
)

// depositColumn maps a bucket to the deposit amount column holding its
// share. Buckets are a closed enum, never raw user input.
func depositColumn(b core.Bucket) string {
	switch b {
	case core.BucketCharity:
		return "charity_amount"
	case core.BucketSpend:
		return "spend_amount"
	case core.BucketSavings:
		return "savings_amount"
	case core.BucketInvestment:
		return "investment_amount"
	}
	return ""
}

// AppendEntry persists a new ledger entry and assigns its identity.
// Entries are never updated or deleted afterwards.
func (r *SQLiteRepository) AppendEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	const query = `INSERT INTO ledger_entries
		(guardian_id, kid_id, kind, amount, description,
		 charity_amount, spend_amount, savings_amount, investment_amount,
		 charity_pct, spend_pct, savings_pct, investment_pct,
		 withdrawal_bucket, transaction_at, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var (
		bucketCols     = make([]any, 0, 8)
		withdrawBucket any
	)
	if e.Kind == core.EntryDeposit {
		bucketCols = append(bucketCols,
			e.Buckets.Charity.StringFixed(2),
			e.Buckets.Spend.StringFixed(2),
			e.Buckets.Savings.StringFixed(2),
			e.Buckets.Investment.StringFixed(2),
			e.Percentages.Charity.StringFixed(2),
			e.Percentages.Spend.StringFixed(2),
			e.Percentages.Savings.StringFixed(2),
			e.Percentages.Investment.StringFixed(2),
		)
		withdrawBucket = nil
	} else {
		bucketCols = append(bucketCols, nil, nil, nil, nil, nil, nil, nil, nil)
		withdrawBucket = string(e.WithdrawalBucket)
	}

	args := append([]any{
		e.GuardianID, e.KidID, string(e.Kind), e.Amount.StringFixed(2), e.Description,
	}, bucketCols...)
	args = append(args, withdrawBucket, e.TransactionAt.UTC(), e.CreatedAt.UTC(), e.CreatedBy)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("insert ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("ledger entry id: %w", err)
	}
	e.ID = id

	slog.InfoContext(ctx, "Ledger entry appended",
		"entry_id", e.ID,
		"kid_id", e.KidID,
		"kind", e.Kind,
		"amount", e.Amount.StringFixed(2))

	return e, nil
}

// ListEntriesForKid returns entries newest first by logical transaction
// timestamp, ties broken by identity so insertion order wins.
func (r *SQLiteRepository) ListEntriesForKid(ctx context.Context, kidID int64, limit, offset int) ([]core.LedgerEntry, error) {
	const query = `SELECT id, guardian_id, kid_id, kind, amount, description,
		charity_amount, spend_amount, savings_amount, investment_amount,
		charity_pct, spend_pct, savings_pct, investment_pct,
		withdrawal_bucket, transaction_at, created_at, created_by
		FROM ledger_entries
		WHERE kid_id = ?
		ORDER BY transaction_at DESC, id DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, kidID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListEntriesForKidAscending returns every entry for a kid in replay
// order: transaction timestamp ascending, identity ascending. Used by
// the balance rebuild path.
func (r *SQLiteRepository) ListEntriesForKidAscending(ctx context.Context, kidID int64) ([]core.LedgerEntry, error) {
	const query = `SELECT id, guardian_id, kid_id, kind, amount, description,
		charity_amount, spend_amount, savings_amount, investment_amount,
		charity_pct, spend_pct, savings_pct, investment_pct,
		withdrawal_bucket, transaction_at, created_at, created_by
		FROM ledger_entries
		WHERE kid_id = ?
		ORDER BY transaction_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, kidID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries for replay: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// CountWithdrawalsInMonth counts withdrawals from the given bucket whose
// transaction timestamp falls on or after monthStart.
func (r *SQLiteRepository) CountWithdrawalsInMonth(ctx context.Context, kidID int64, bucket core.Bucket, monthStart time.Time) (int64, error) {
	const query = `SELECT COUNT(*) FROM ledger_entries
		WHERE kid_id = ? AND kind = 'WITHDRAWAL' AND withdrawal_bucket = ? AND transaction_at >= ?`

	var count int64
	err := r.db.QueryRowContext(ctx, query, kidID, string(bucket), monthStart.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count withdrawals in month: %w", err)
	}
	return count, nil
}

// SumBucket aggregates amounts for a bucket across one entry kind. For
// deposits the bucket's split column is summed; for withdrawals the
// entry amount where the bucket was the target. Used by consistency
// checks and rebuilds, not the hot path.
func (r *SQLiteRepository) SumBucket(ctx context.Context, kidID int64, bucket core.Bucket, kind core.EntryKind) (decimal.Decimal, error) {
	var (
		query string
		args  []any
	)
	if kind == core.EntryDeposit {
		query = fmt.Sprintf(`SELECT COALESCE(SUM(%s), 0) FROM ledger_entries
			WHERE kid_id = ? AND kind = 'DEPOSIT'`, depositColumn(bucket))
		args = []any{kidID}
	} else {
		query = `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
			WHERE kid_id = ? AND kind = 'WITHDRAWAL' AND withdrawal_bucket = ?`
		args = []any{kidID, string(bucket)}
	}

	var sum sql.NullString
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum bucket: %w", err)
	}
	return scanDecimal(sum)
}

// HasEntriesForKid reports whether any ledger entry exists for the kid.
func (r *SQLiteRepository) HasEntriesForKid(ctx context.Context, kidID int64) (bool, error) {
	const query = `SELECT 1 FROM ledger_entries WHERE kid_id = ? LIMIT 1`

	var one int
	err := r.db.QueryRowContext(ctx, query, kidID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check ledger entries: %w", err)
	}
	return true, nil
}

func scanEntries(rows *sql.Rows) ([]core.LedgerEntry, error) {
	var entries []core.LedgerEntry
	for rows.Next() {
		var (
			e              core.LedgerEntry
			kind, amount   string
			withdrawBucket sql.NullString

			chAmt, spAmt, svAmt, ivAmt sql.NullString
			chPct, spPct, svPct, ivPct sql.NullString
		)
		err := rows.Scan(&e.ID, &e.GuardianID, &e.KidID, &kind, &amount, &e.Description,
			&chAmt, &spAmt, &svAmt, &ivAmt,
			&chPct, &spPct, &svPct, &ivPct,
			&withdrawBucket, &e.TransactionAt, &e.CreatedAt, &e.CreatedBy)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}

		e.Kind = core.EntryKind(kind)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse entry amount %q: %w", amount, err)
		}
		if e.Buckets, err = scanBucketAmounts(chAmt, spAmt, svAmt, ivAmt); err != nil {
			return nil, err
		}
		if e.Percentages, err = scanBucketAmounts(chPct, spPct, svPct, ivPct); err != nil {
			return nil, err
		}
		if withdrawBucket.Valid {
			e.WithdrawalBucket = core.Bucket(withdrawBucket.String)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

func scanBucketAmounts(charity, spend, savings, investment sql.NullString) (core.BucketAmounts, error) {
	var (
		a   core.BucketAmounts
		err error
	)
	if a.Charity, err = scanDecimal(charity); err != nil {
		return a, err
	}
	if a.Spend, err = scanDecimal(spend); err != nil {
		return a, err
	}
	if a.Savings, err = scanDecimal(savings); err != nil {
		return a, err
	}
	if a.Investment, err = scanDecimal(investment); err != nil {
		return a, err
	}
	return a, nil
}
