package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"piggybank/internal/core"

	"github.com/shopspring/decimal"
)

// GetPolicy returns the guardian's allocation policy, or nil if none has
// been persisted yet.
func (r *SQLiteRepository) GetPolicy(ctx context.Context, guardianID int64) (*core.AllocationPolicy, error) {
	const query = `SELECT guardian_id, charity_pct, spend_pct, savings_pct, investment_pct,
		savings_monthly_cap, investment_monthly_cap,
		created_at, updated_at, created_by, updated_by
		FROM allocation_policies WHERE guardian_id = ?`

	var (
		p              core.AllocationPolicy
		ch, sp, sv, iv string
	)
	err := r.db.QueryRowContext(ctx, query, guardianID).Scan(
		&p.GuardianID, &ch, &sp, &sv, &iv,
		&p.SavingsMonthlyCap, &p.InvestmentMonthlyCap,
		&p.CreatedAt, &p.UpdatedAt, &p.CreatedBy, &p.UpdatedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}

	parse := func(src string, dst *decimal.Decimal) error {
		d, err := decimal.NewFromString(src)
		if err != nil {
			return fmt.Errorf("parse stored percentage %q: %w", src, err)
		}
		*dst = d
		return nil
	}
	if err := parse(ch, &p.CharityPct); err != nil {
		return nil, err
	}
	if err := parse(sp, &p.SpendPct); err != nil {
		return nil, err
	}
	if err := parse(sv, &p.SavingsPct); err != nil {
		return nil, err
	}
	if err := parse(iv, &p.InvestmentPct); err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePolicy inserts or replaces the guardian's policy row in place. No
// history is kept beyond the audit stamps.
func (r *SQLiteRepository) SavePolicy(ctx context.Context, p core.AllocationPolicy) error {
	const query = `INSERT INTO allocation_policies
		(guardian_id, charity_pct, spend_pct, savings_pct, investment_pct,
		 savings_monthly_cap, investment_monthly_cap,
		 created_at, updated_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guardian_id) DO UPDATE SET
		 charity_pct = excluded.charity_pct,
		 spend_pct = excluded.spend_pct,
		 savings_pct = excluded.savings_pct,
		 investment_pct = excluded.investment_pct,
		 savings_monthly_cap = excluded.savings_monthly_cap,
		 investment_monthly_cap = excluded.investment_monthly_cap,
		 updated_at = excluded.updated_at,
		 updated_by = excluded.updated_by`

	_, err := r.db.ExecContext(ctx, query,
		p.GuardianID,
		p.CharityPct.StringFixed(2), p.SpendPct.StringFixed(2),
		p.SavingsPct.StringFixed(2), p.InvestmentPct.StringFixed(2),
		p.SavingsMonthlyCap, p.InvestmentMonthlyCap,
		p.CreatedAt.UTC(), p.UpdatedAt.UTC(), p.CreatedBy, p.UpdatedBy)
	if err != nil {
		return fmt.Errorf("save policy: %w", err)
	}

	slog.InfoContext(ctx, "Allocation policy saved",
		"guardian_id", p.GuardianID,
		"charity_pct", p.CharityPct.StringFixed(2),
		"spend_pct", p.SpendPct.StringFixed(2),
		"savings_pct", p.SavingsPct.StringFixed(2),
		"investment_pct", p.InvestmentPct.StringFixed(2))
	return nil
}
