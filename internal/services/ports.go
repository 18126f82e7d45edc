// Package services orchestrates the piggybank core: the transaction
// engine, the balance projector, policy and kid management and the
// read-side query facade.
package services

import (
	"context"
	"time"

	"piggybank/internal/core"

	"github.com/shopspring/decimal"
)

// LedgerStore is the append-only transaction log, the system of record.
type LedgerStore interface {
	AppendEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error)
	ListEntriesForKid(ctx context.Context, kidID int64, limit, offset int) ([]core.LedgerEntry, error)
	ListEntriesForKidAscending(ctx context.Context, kidID int64) ([]core.LedgerEntry, error)
	CountWithdrawalsInMonth(ctx context.Context, kidID int64, bucket core.Bucket, monthStart time.Time) (int64, error)
	SumBucket(ctx context.Context, kidID int64, bucket core.Bucket, kind core.EntryKind) (decimal.Decimal, error)
	HasEntriesForKid(ctx context.Context, kidID int64) (bool, error)
}

// BalanceStore persists the cached per-kid bucket balances.
type BalanceStore interface {
	GetBalance(ctx context.Context, kidID int64) (*core.BucketBalance, error)
	CreateBalance(ctx context.Context, b core.BucketBalance) error
	UpdateBalance(ctx context.Context, b core.BucketBalance) error
	ListBalancesForGuardian(ctx context.Context, guardianID int64) (map[int64]core.BucketBalance, error)
}

// PolicyStore persists allocation policies, one row per guardian.
type PolicyStore interface {
	GetPolicy(ctx context.Context, guardianID int64) (*core.AllocationPolicy, error)
	SavePolicy(ctx context.Context, p core.AllocationPolicy) error
}

// KidStore persists kids.
type KidStore interface {
	CreateKid(ctx context.Context, k core.Kid) (core.Kid, error)
	GetKid(ctx context.Context, kidID, guardianID int64) (*core.Kid, error)
	ListKids(ctx context.Context, guardianID int64) ([]core.Kid, error)
	UpdateKid(ctx context.Context, k core.Kid) error
	DeleteKid(ctx context.Context, kidID, guardianID int64) error
}

// ReconcilePublisher flags a kid balance for asynchronous reconciliation
// after a persisted entry could not be folded into the cache.
type ReconcilePublisher interface {
	PublishBalanceReconcile(ctx context.Context, guardianID, kidID, entryID int64) error
}
