package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"piggybank/internal/core"

	"github.com/shopspring/decimal"
)

// TransactionEngine turns deposit and withdrawal requests into immutable
// ledger entries and keeps the projected balance in step with them.
//
// Every operation on a given kid runs under that kid's lock, so the
// validate-append-project sequence is serialized per kid while different
// kids proceed in parallel.
type TransactionEngine struct {
	ledger     LedgerStore
	projector  *BalanceProjector
	policies   *PolicyService
	kids       KidStore
	reconciler ReconcilePublisher
	now        func() time.Time

	muMap map[int64]*sync.Mutex
	mapMu sync.Mutex
}

func NewTransactionEngine(ledger LedgerStore, projector *BalanceProjector, policies *PolicyService, kids KidStore, reconciler ReconcilePublisher) *TransactionEngine {
	return &TransactionEngine{
		ledger:     ledger,
		projector:  projector,
		policies:   policies,
		kids:       kids,
		reconciler: reconciler,
		now:        time.Now,
		muMap:      make(map[int64]*sync.Mutex),
	}
}

func (e *TransactionEngine) kidLock(kidID int64) *sync.Mutex {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()

	if _, exists := e.muMap[kidID]; !exists {
		e.muMap[kidID] = &sync.Mutex{}
	}
	return e.muMap[kidID]
}

// monthStart returns the first instant of the current calendar month in
// UTC, the window boundary for withdrawal caps.
func (e *TransactionEngine) monthStart() time.Time {
	now := e.now().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (e *TransactionEngine) ownedKid(ctx context.Context, guardianID, kidID int64) error {
	kid, err := e.kids.GetKid(ctx, kidID, guardianID)
	if err != nil {
		return fmt.Errorf("look up kid: %w", err)
	}
	if kid == nil {
		return &core.InvalidRequestError{Reason: fmt.Sprintf("kid %d not found for guardian %d", kidID, guardianID)}
	}
	return nil
}

// ProcessDeposit splits a deposit across the four buckets per the
// guardian's policy, appends the entry and folds it into the balance. On
// success every persisted bucket amount sums exactly to the total.
func (e *TransactionEngine) ProcessDeposit(ctx context.Context, guardianID, kidID int64, amount decimal.Decimal, description, actor string) (core.LedgerEntry, error) {
	if !amount.IsPositive() {
		return core.LedgerEntry{}, &core.InvalidRequestError{Reason: "deposit amount must be positive"}
	}
	if err := e.ownedKid(ctx, guardianID, kidID); err != nil {
		return core.LedgerEntry{}, err
	}

	lock := e.kidLock(kidID)
	lock.Lock()
	defer lock.Unlock()

	policy, err := e.policies.GetEffectivePolicy(ctx, guardianID, actor)
	if err != nil {
		return core.LedgerEntry{}, err
	}

	split := core.SplitDeposit(amount, policy)
	now := e.now().UTC()

	entry, err := e.ledger.AppendEntry(ctx, core.LedgerEntry{
		GuardianID:    guardianID,
		KidID:         kidID,
		Kind:          core.EntryDeposit,
		Amount:        amount,
		Description:   description,
		Buckets:       split,
		Percentages:   policy.Percentages(),
		TransactionAt: now,
		CreatedAt:     now,
		CreatedBy:     actor,
	})
	if err != nil {
		return core.LedgerEntry{}, &core.StorageError{Op: "append deposit", Err: err}
	}

	if _, err := e.projector.ApplyDelta(ctx, guardianID, kidID, split, actor); err != nil {
		return entry, e.flagInconsistency(ctx, entry, err)
	}

	slog.InfoContext(ctx, "Deposit processed",
		"entry_id", entry.ID,
		"kid_id", kidID,
		"guardian_id", guardianID,
		"amount", amount.StringFixed(2),
		"actor", actor)
	return entry, nil
}

// ProcessWithdrawal takes money out of a single bucket, enforcing the
// monthly cap for savings and investment and the bucket's available
// balance. All checks happen before anything is written.
func (e *TransactionEngine) ProcessWithdrawal(ctx context.Context, guardianID, kidID int64, bucket core.Bucket, amount decimal.Decimal, description, actor string) (core.LedgerEntry, error) {
	if !amount.IsPositive() {
		return core.LedgerEntry{}, &core.InvalidRequestError{Reason: "withdrawal amount must be positive"}
	}
	if !bucket.Valid() {
		return core.LedgerEntry{}, &core.InvalidRequestError{Reason: "unknown bucket: " + string(bucket)}
	}
	if err := e.ownedKid(ctx, guardianID, kidID); err != nil {
		return core.LedgerEntry{}, err
	}

	lock := e.kidLock(kidID)
	lock.Lock()
	defer lock.Unlock()

	policy, err := e.policies.GetEffectivePolicy(ctx, guardianID, actor)
	if err != nil {
		return core.LedgerEntry{}, err
	}

	if limit, capped := policy.CapFor(bucket); capped {
		count, err := e.ledger.CountWithdrawalsInMonth(ctx, kidID, bucket, e.monthStart())
		if err != nil {
			return core.LedgerEntry{}, &core.StorageError{Op: "count withdrawals", Err: err}
		}
		if count >= int64(limit) {
			return core.LedgerEntry{}, &core.WithdrawalLimitError{Bucket: bucket, Limit: limit}
		}
	}

	available := decimal.Zero
	balance, err := e.projector.balances.GetBalance(ctx, kidID)
	if err != nil {
		return core.LedgerEntry{}, &core.StorageError{Op: "get balance", Err: err}
	}
	if balance != nil {
		available = balance.Amounts.For(bucket)
	}
	if amount.GreaterThan(available) {
		return core.LedgerEntry{}, &core.InsufficientBalanceError{
			Bucket:    bucket,
			Requested: amount,
			Available: available,
		}
	}

	now := e.now().UTC()
	entry, err := e.ledger.AppendEntry(ctx, core.LedgerEntry{
		GuardianID:       guardianID,
		KidID:            kidID,
		Kind:             core.EntryWithdrawal,
		Amount:           amount,
		Description:      description,
		WithdrawalBucket: bucket,
		TransactionAt:    now,
		CreatedAt:        now,
		CreatedBy:        actor,
	})
	if err != nil {
		return core.LedgerEntry{}, &core.StorageError{Op: "append withdrawal", Err: err}
	}

	delta := core.BucketAmounts{}.WithBucket(bucket, amount.Neg())
	if _, err := e.projector.ApplyDelta(ctx, guardianID, kidID, delta, actor); err != nil {
		return entry, e.flagInconsistency(ctx, entry, err)
	}

	slog.InfoContext(ctx, "Withdrawal processed",
		"entry_id", entry.ID,
		"kid_id", kidID,
		"guardian_id", guardianID,
		"bucket", bucket,
		"amount", amount.StringFixed(2),
		"actor", actor)
	return entry, nil
}

// flagInconsistency handles the persisted-but-not-projected window: the
// ledger write stands, the balance is stale. The kid is flagged for
// asynchronous reconciliation and the caller gets a distinct error so
// the failure is never mistaken for a user mistake.
func (e *TransactionEngine) flagInconsistency(ctx context.Context, entry core.LedgerEntry, cause error) error {
	slog.ErrorContext(ctx, "Ledger entry persisted but projection failed",
		"entry_id", entry.ID,
		"kid_id", entry.KidID,
		"error", cause)

	if e.reconciler != nil {
		if err := e.reconciler.PublishBalanceReconcile(ctx, entry.GuardianID, entry.KidID, entry.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to publish reconcile message",
				"entry_id", entry.ID,
				"kid_id", entry.KidID,
				"error", err)
		}
	}

	return &core.ProjectionError{EntryID: entry.ID, KidID: entry.KidID, Err: cause}
}
