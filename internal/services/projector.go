package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"piggybank/internal/core"
)

// BalanceProjector maintains the cached per-kid bucket balance derived
// from the ledger. The ledger stays authoritative: every balance this
// projector writes can be reproduced by RebuildFromLedger.
type BalanceProjector struct {
	balances BalanceStore
	ledger   LedgerStore
	now      func() time.Time
}

func NewBalanceProjector(balances BalanceStore, ledger LedgerStore) *BalanceProjector {
	return &BalanceProjector{
		balances: balances,
		ledger:   ledger,
		now:      time.Now,
	}
}

// GetOrCreate returns the kid's balance row, materializing a
// zero-initialized one attributed to the acting identity on first
// access.
func (p *BalanceProjector) GetOrCreate(ctx context.Context, guardianID, kidID int64, actor string) (core.BucketBalance, error) {
	existing, err := p.balances.GetBalance(ctx, kidID)
	if err != nil {
		return core.BucketBalance{}, fmt.Errorf("get balance: %w", err)
	}
	if existing != nil {
		return *existing, nil
	}

	balance := core.BucketBalance{
		KidID:      kidID,
		GuardianID: guardianID,
		UpdatedAt:  p.now().UTC(),
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
	if err := p.balances.CreateBalance(ctx, balance); err != nil {
		return core.BucketBalance{}, fmt.Errorf("create balance: %w", err)
	}
	return balance, nil
}

// ApplyDelta folds signed per-bucket deltas into the kid's balance. The
// grand total is always recomputed as the sum of the four buckets, never
// tracked on its own.
func (p *BalanceProjector) ApplyDelta(ctx context.Context, guardianID, kidID int64, deltas core.BucketAmounts, actor string) (core.BucketBalance, error) {
	balance, err := p.GetOrCreate(ctx, guardianID, kidID, actor)
	if err != nil {
		return core.BucketBalance{}, err
	}

	balance.Amounts = balance.Amounts.Add(deltas)
	balance.UpdatedAt = p.now().UTC()
	balance.UpdatedBy = actor

	if err := p.balances.UpdateBalance(ctx, balance); err != nil {
		return core.BucketBalance{}, fmt.Errorf("apply balance delta: %w", err)
	}
	return balance, nil
}

// RebuildFromLedger recomputes the kid's balance from scratch by
// replaying every ledger entry in timestamp order. This is the
// reconciliation path after a persisted-but-not-projected failure, and
// the audit path for drift detection.
func (p *BalanceProjector) RebuildFromLedger(ctx context.Context, guardianID, kidID int64, actor string) (core.BucketBalance, error) {
	entries, err := p.ledger.ListEntriesForKidAscending(ctx, kidID)
	if err != nil {
		return core.BucketBalance{}, fmt.Errorf("replay ledger: %w", err)
	}

	var amounts core.BucketAmounts
	for _, e := range entries {
		switch e.Kind {
		case core.EntryDeposit:
			amounts = amounts.Add(e.Buckets)
		case core.EntryWithdrawal:
			amounts = amounts.Sub(core.BucketAmounts{}.WithBucket(e.WithdrawalBucket, e.Amount))
		}
	}

	// A negative bucket after replay means an approved withdrawal
	// overdrew it: a bug, not a valid state. Rebuild anyway so the
	// cache matches the ledger, but say so loudly.
	if amounts.Negative() {
		slog.ErrorContext(ctx, "Ledger replay produced a negative bucket balance",
			"kid_id", kidID,
			"charity", amounts.Charity.StringFixed(2),
			"spend", amounts.Spend.StringFixed(2),
			"savings", amounts.Savings.StringFixed(2),
			"investment", amounts.Investment.StringFixed(2))
	}

	balance, err := p.GetOrCreate(ctx, guardianID, kidID, actor)
	if err != nil {
		return core.BucketBalance{}, err
	}
	balance.Amounts = amounts
	balance.UpdatedAt = p.now().UTC()
	balance.UpdatedBy = actor

	if err := p.balances.UpdateBalance(ctx, balance); err != nil {
		return core.BucketBalance{}, fmt.Errorf("store rebuilt balance: %w", err)
	}

	slog.InfoContext(ctx, "Balance rebuilt from ledger",
		"kid_id", kidID,
		"entries", len(entries),
		"total", balance.Total().StringFixed(2))
	return balance, nil
}

// VerifyAgainstLedger recomputes the kid's balance by replay and
// compares it to the cached row. It returns true when they match. Used
// by the worker's periodic consistency sweep.
func (p *BalanceProjector) VerifyAgainstLedger(ctx context.Context, kidID int64) (bool, error) {
	cached, err := p.balances.GetBalance(ctx, kidID)
	if err != nil {
		return false, fmt.Errorf("get cached balance: %w", err)
	}

	entries, err := p.ledger.ListEntriesForKidAscending(ctx, kidID)
	if err != nil {
		return false, fmt.Errorf("replay ledger: %w", err)
	}

	var derived core.BucketAmounts
	for _, e := range entries {
		switch e.Kind {
		case core.EntryDeposit:
			derived = derived.Add(e.Buckets)
		case core.EntryWithdrawal:
			derived = derived.Sub(core.BucketAmounts{}.WithBucket(e.WithdrawalBucket, e.Amount))
		}
	}

	var cachedAmounts core.BucketAmounts
	if cached != nil {
		cachedAmounts = cached.Amounts
	}

	for _, b := range core.Buckets {
		if !derived.For(b).Equal(cachedAmounts.For(b)) {
			return false, nil
		}
	}
	return true, nil
}
