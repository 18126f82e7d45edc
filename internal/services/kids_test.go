package services

import (
	"context"
	"errors"
	"testing"

	"piggybank/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKidLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	kid, err := env.kids.CreateKid(ctx, 1, "Ada", 9, testActor)
	require.NoError(t, err)
	assert.NotZero(t, kid.ID)

	updated, err := env.kids.UpdateKid(ctx, 1, kid.ID, "Ada L.", 10, testActor)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.Name)
	assert.Equal(t, 10, updated.Age)

	listed, err := env.kids.ListKids(ctx, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, env.kids.DeleteKid(ctx, 1, kid.ID, testActor))

	listed, err = env.kids.ListKids(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestCreateKidValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.kids.CreateKid(ctx, 1, "", 9, testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))

	_, err = env.kids.CreateKid(ctx, 1, "Ada", 42, testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))
}

func TestDeleteKidRefusedWithLedgerHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	_, err := env.engine.ProcessDeposit(ctx, 1, kid.ID, dec("5.00"), "", testActor)
	require.NoError(t, err)

	err = env.kids.DeleteKid(ctx, 1, kid.ID, testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))

	// Kid is still there.
	got, err := env.kids.GetKid(ctx, 1, kid.ID)
	require.NoError(t, err)
	assert.Equal(t, kid.ID, got.ID)
}

func TestKidOwnershipScoping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.addKid(t, 1, "Ada")

	_, err := env.kids.GetKid(ctx, 2, kid.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))

	_, err = env.kids.UpdateKid(ctx, 2, kid.ID, "Eve", 9, testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidRequest))
}
