package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"piggybank/internal/core"
	"piggybank/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testActor = "parent@example.com"

type testEnv struct {
	repo      *storage.SQLiteRepository
	engine    *TransactionEngine
	projector *BalanceProjector
	policies  *PolicyService
	kids      *KidService
	queries   *QueryService
	clock     *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	env := &testEnv{repo: repo, clock: &now}
	tick := func() time.Time {
		*env.clock = env.clock.Add(time.Second)
		return *env.clock
	}

	env.projector = NewBalanceProjector(repo, repo)
	env.projector.now = tick
	env.policies = NewPolicyService(repo)
	env.policies.now = tick
	env.engine = NewTransactionEngine(repo, env.projector, env.policies, repo, nil)
	env.engine.now = tick
	env.kids = NewKidService(repo, repo)
	env.kids.now = tick
	env.queries = NewQueryService(repo, repo, repo)
	return env
}

func (env *testEnv) addKid(t *testing.T, guardianID int64, name string) core.Kid {
	t.Helper()
	kid, err := env.kids.CreateKid(context.Background(), guardianID, name, 9, testActor)
	require.NoError(t, err)
	return kid
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestProcessDepositEvenSplit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	entry, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("10.00"), "birthday", testActor)
	require.NoError(t, err)

	assert.Equal(t, core.EntryDeposit, entry.Kind)
	for _, b := range core.Buckets {
		assert.True(t, entry.Buckets.For(b).Equal(dec("2.50")), "bucket %s: %s", b, entry.Buckets.For(b))
	}

	summary, err := env.queries.BalanceSummary(ctx, 1, kid.ID)
	require.NoError(t, err)
	assert.True(t, summary.Total.Equal(dec("10.00")))
	assert.True(t, summary.Amounts.Savings.Equal(dec("2.50")))
}

func TestProcessDepositRemainderToSpend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	entry, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("10.01"), "allowance", testActor)
	require.NoError(t, err)

	assert.True(t, entry.Buckets.Charity.Equal(dec("2.50")))
	assert.True(t, entry.Buckets.Spend.Equal(dec("2.51")))
	assert.True(t, entry.Buckets.Savings.Equal(dec("2.50")))
	assert.True(t, entry.Buckets.Investment.Equal(dec("2.50")))
	assert.True(t, entry.Buckets.Total().Equal(dec("10.01")))

	summary, err := env.queries.BalanceSummary(ctx, 1, kid.ID)
	require.NoError(t, err)
	assert.True(t, summary.Amounts.Spend.Equal(dec("2.51")))
	assert.True(t, summary.Total.Equal(dec("10.01")))
}

func TestProcessDepositFreezesPercentages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	first, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("10.00"), "", testActor)
	require.NoError(t, err)

	// Change the split; the already-persisted entry must keep the old
	// percentages.
	policy := core.AllocationPolicy{
		CharityPct:           dec("10.00"),
		SpendPct:             dec("40.00"),
		SavingsPct:           dec("30.00"),
		InvestmentPct:        dec("20.00"),
		SavingsMonthlyCap:    2,
		InvestmentMonthlyCap: 2,
	}
	_, err = env.policies.SetPolicy(ctx, 1, policy, testActor)
	require.NoError(t, err)

	second, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("10.00"), "", testActor)
	require.NoError(t, err)

	entries, err := env.queries.RecentActivity(ctx, 1, kid.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.True(t, entries[0].Percentages.Charity.Equal(dec("10.00")))
	assert.Equal(t, first.ID, entries[1].ID)
	assert.True(t, entries[1].Percentages.Charity.Equal(dec("25.00")))
}

func TestProcessDepositRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	for _, amount := range []string{"0", "-1.00"} {
		_, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec(amount), "", testActor)
		require.Error(t, err, amount)
		assert.True(t, errors.Is(err, core.ErrInvalidRequest))
	}

	entries, err := env.repo.ListEntriesForKid(ctx, kid.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessDepositRejectsForeignKid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	_, err := env.engine.ProcessDeposit(ctx, 2, kid.ID, dec("10.00"), "", testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))
}

func TestProcessWithdrawalHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	_, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("20.00"), "", testActor)
	require.NoError(t, err)

	entry, err := env.engine.ProcessWithdrawal(ctx, 1, kid.ID, core.BucketSpend, dec("3.00"), "toy", testActor)
	require.NoError(t, err)
	assert.Equal(t, core.EntryWithdrawal, entry.Kind)
	assert.Equal(t, core.BucketSpend, entry.WithdrawalBucket)

	available, err := env.queries.AvailableBalance(ctx, 1, kid.ID, core.BucketSpend)
	require.NoError(t, err)
	assert.True(t, available.Equal(dec("2.00")))

	summary, err := env.queries.BalanceSummary(ctx, 1, kid.ID)
	require.NoError(t, err)
	assert.True(t, summary.Total.Equal(dec("17.00")))
	assert.True(t, summary.Total.Equal(summary.Amounts.Total()))
}

func TestProcessWithdrawalInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	_, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("10.00"), "", testActor)
	require.NoError(t, err)

	_, err = env.engine.ProcessWithdrawal(ctx, 1, kid.ID, core.BucketSpend, dec("2.51"), "", testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientBalance))

	var detail *core.InsufficientBalanceError
	require.True(t, errors.As(err, &detail))
	assert.True(t, detail.Requested.Equal(dec("2.51")))
	assert.True(t, detail.Available.Equal(dec("2.50")))

	// No ledger entry was produced by the failed withdrawal.
	entries, err := env.repo.ListEntriesForKid(ctx, kid.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, core.EntryDeposit, entries[0].Kind)
}

func TestProcessWithdrawalNoBalanceRowMeansZeroAvailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	_, err := env.engine.ProcessWithdrawal(ctx, 1, kid.ID, core.BucketCharity, dec("0.01"), "", testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInsufficientBalance))
}

func TestWithdrawalMonthlyCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	_, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("100.00"), "", testActor)
	require.NoError(t, err)

	// Default cap is 2 per month for savings.
	for i := 0; i < 2; i++ {
		_, err := env.engine.ProcessWithdrawal(ctx, 1, kid.ID, core.BucketSavings, dec("1.00"), "", testActor)
		require.NoError(t, err)
	}

	_, err = env.engine.ProcessWithdrawal(ctx, 1, kid.ID, core.BucketSavings, dec("1.00"), "", testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrWithdrawalLimitExceeded))

	var detail *core.WithdrawalLimitError
	require.True(t, errors.As(err, &detail))
	assert.Equal(t, 2, detail.Limit)
	assert.Contains(t, detail.Error(), "limit: 2")

	// Next calendar month the window resets.
	*env.clock = time.Date(2025, 4, 1, 0, 0, 1, 0, time.UTC)
	_, err = env.engine.ProcessWithdrawal(ctx, 1, kid.ID, core.BucketSavings, dec("1.00"), "", testActor)
	require.NoError(t, err)
}

func TestCharityAndSpendHaveNoCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	_, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("100.00"), "", testActor)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := env.engine.ProcessWithdrawal(ctx, 1, kid.ID, core.BucketCharity, dec("1.00"), "", testActor)
		require.NoError(t, err)
		_, err = env.engine.ProcessWithdrawal(ctx, 1, kid.ID, core.BucketSpend, dec("1.00"), "", testActor)
		require.NoError(t, err)
	}
}

func TestBalanceInvariantAcrossSequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	deposits := []string{"10.01", "33.33", "0.07", "20.00"}
	total := decimal.Zero
	for _, amount := range deposits {
		_, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec(amount), "", testActor)
		require.NoError(t, err)
		total = total.Add(dec(amount))
	}

	withdrawals := []struct {
		bucket core.Bucket
		amount string
	}{
		{core.BucketSpend, "5.00"},
		{core.BucketCharity, "2.25"},
		{core.BucketSavings, "1.10"},
	}
	for _, w := range withdrawals {
		_, err := env.engine.ProcessWithdrawal(ctx, 1, kid.ID, w.bucket, dec(w.amount), "", testActor)
		require.NoError(t, err)
		total = total.Sub(dec(w.amount))
	}

	summary, err := env.queries.BalanceSummary(ctx, 1, kid.ID)
	require.NoError(t, err)
	assert.True(t, summary.Total.Equal(total), "expected %s, got %s", total, summary.Total)
	assert.True(t, summary.Total.Equal(summary.Amounts.Total()))

	// Replaying the ledger reproduces exactly the projected balance.
	ok, err := env.projector.VerifyAgainstLedger(ctx, kid.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	rebuilt, err := env.projector.RebuildFromLedger(ctx, 1, kid.ID, testActor)
	require.NoError(t, err)
	assert.True(t, rebuilt.Total().Equal(total))
}

type failingBalanceStore struct {
	BalanceStore
}

func (f *failingBalanceStore) UpdateBalance(ctx context.Context, b core.BucketBalance) error {
	return errors.New("disk full")
}

type captureReconciler struct {
	guardianID, kidID, entryID int64
	published                  bool
}

func (c *captureReconciler) PublishBalanceReconcile(ctx context.Context, guardianID, kidID, entryID int64) error {
	c.guardianID, c.kidID, c.entryID = guardianID, kidID, entryID
	c.published = true
	return nil
}

func TestProjectionFailureSurfacesDistinctError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	reconciler := &captureReconciler{}
	broken := NewBalanceProjector(&failingBalanceStore{BalanceStore: env.repo}, env.repo)
	broken.now = env.projector.now
	engine := NewTransactionEngine(env.repo, broken, env.policies, env.repo, reconciler)
	engine.now = env.engine.now

	entry, err := engine.ProcessDeposit(ctx, 1, kid.ID, dec("10.00"), "", testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrProjectionInconsistency))

	// The ledger write stands even though the fold failed.
	assert.NotZero(t, entry.ID)
	entries, err := env.repo.ListEntriesForKid(ctx, kid.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// The kid was flagged for reconciliation.
	assert.True(t, reconciler.published)
	assert.Equal(t, kid.ID, reconciler.kidID)
	assert.Equal(t, entry.ID, reconciler.entryID)

	// Reconciliation by replay repairs the cache.
	rebuilt, err := env.projector.RebuildFromLedger(ctx, 1, kid.ID, testActor)
	require.NoError(t, err)
	assert.True(t, rebuilt.Total().Equal(dec("10.00")))
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	_, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("10.00"), "", testActor)
	require.NoError(t, err)
	// 2.50 in spend; race ten 1.00 withdrawals against it.
	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := env.engine.ProcessWithdrawal(ctx, 1, kid.ID, core.BucketSpend, dec("1.00"), "", testActor)
			done <- err
		}()
	}

	succeeded := 0
	for i := 0; i < 10; i++ {
		if err := <-done; err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, core.ErrInsufficientBalance))
		}
	}
	assert.Equal(t, 2, succeeded)

	available, err := env.queries.AvailableBalance(ctx, 1, kid.ID, core.BucketSpend)
	require.NoError(t, err)
	assert.True(t, available.Equal(dec("0.50")))
	assert.False(t, available.IsNegative())
}
