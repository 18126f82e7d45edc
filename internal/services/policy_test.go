package services

import (
	"context"
	"errors"
	"testing"

	"piggybank/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEffectivePolicyMaterializesDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	policy, err := env.policies.GetEffectivePolicy(ctx, 1, testActor)
	require.NoError(t, err)
	for _, b := range core.Buckets {
		assert.True(t, policy.Percentages().For(b).Equal(dec("25.00")), "bucket %s", b)
	}
	assert.Equal(t, 2, policy.SavingsMonthlyCap)
	assert.Equal(t, 2, policy.InvestmentMonthlyCap)
	assert.Equal(t, testActor, policy.CreatedBy)

	// The default is persisted, not re-derived each call.
	stored, err := env.repo.GetPolicy(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.SpendPct.Equal(dec("25.00")))
}

func TestSetPolicyRejectsBadSplitAndKeepsPrior(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	good := core.AllocationPolicy{
		CharityPct:           dec("10.00"),
		SpendPct:             dec("40.00"),
		SavingsPct:           dec("30.00"),
		InvestmentPct:        dec("20.00"),
		SavingsMonthlyCap:    1,
		InvestmentMonthlyCap: 3,
	}
	_, err := env.policies.SetPolicy(ctx, 1, good, testActor)
	require.NoError(t, err)

	bad := good
	bad.SpendPct = dec("40.01")
	_, err = env.policies.SetPolicy(ctx, 1, bad, testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidPolicy))

	current, err := env.policies.GetEffectivePolicy(ctx, 1, testActor)
	require.NoError(t, err)
	assert.True(t, current.SpendPct.Equal(dec("40.00")))
}

func TestSetPolicyPreservesCreationAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.policies.GetEffectivePolicy(ctx, 1, "first@example.com")
	require.NoError(t, err)

	update := first
	update.SavingsMonthlyCap = 5
	saved, err := env.policies.SetPolicy(ctx, 1, update, "second@example.com")
	require.NoError(t, err)

	assert.Equal(t, "first@example.com", saved.CreatedBy)
	assert.Equal(t, "second@example.com", saved.UpdatedBy)
	assert.Equal(t, first.CreatedAt, saved.CreatedAt)
	assert.Equal(t, 5, saved.SavingsMonthlyCap)
}
