package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"piggybank/internal/cache"
	"piggybank/internal/core"
)

const (
	policyCacheSize = 256
	policyCacheTTL  = time.Minute
)

// PolicyService owns allocation policies: the guardian's deposit split
// percentages and monthly withdrawal caps. Policies are read on every
// deposit and withdrawal, so effective policies are cached per guardian
// with a short TTL.
type PolicyService struct {
	store PolicyStore
	cache *cache.LRU[int64, core.AllocationPolicy]
	now   func() time.Time
}

func NewPolicyService(store PolicyStore) *PolicyService {
	return &PolicyService{
		store: store,
		cache: cache.NewLRU[int64, core.AllocationPolicy](policyCacheSize, policyCacheTTL),
		now:   time.Now,
	}
}

// GetEffectivePolicy returns the guardian's stored policy, materializing
// and persisting the 25/25/25/25 default with caps of 2 the first time
// one is needed.
func (s *PolicyService) GetEffectivePolicy(ctx context.Context, guardianID int64, actor string) (core.AllocationPolicy, error) {
	if cached, ok := s.cache.Get(guardianID); ok {
		return cached, nil
	}

	existing, err := s.store.GetPolicy(ctx, guardianID)
	if err != nil {
		return core.AllocationPolicy{}, fmt.Errorf("get policy: %w", err)
	}
	if existing != nil {
		s.cache.Set(guardianID, *existing)
		return *existing, nil
	}

	policy := core.DefaultPolicy(guardianID)
	now := s.now().UTC()
	policy.CreatedAt, policy.UpdatedAt = now, now
	policy.CreatedBy, policy.UpdatedBy = actor, actor

	if err := s.store.SavePolicy(ctx, policy); err != nil {
		return core.AllocationPolicy{}, fmt.Errorf("persist default policy: %w", err)
	}
	s.cache.Set(guardianID, policy)

	slog.InfoContext(ctx, "Default allocation policy materialized",
		"guardian_id", guardianID, "actor", actor)
	return policy, nil
}

// SetPolicy validates and replaces the guardian's policy in place. An
// invalid policy leaves any prior one untouched.
func (s *PolicyService) SetPolicy(ctx context.Context, guardianID int64, policy core.AllocationPolicy, actor string) (core.AllocationPolicy, error) {
	if err := policy.Validate(); err != nil {
		return core.AllocationPolicy{}, err
	}

	existing, err := s.store.GetPolicy(ctx, guardianID)
	if err != nil {
		return core.AllocationPolicy{}, fmt.Errorf("get policy: %w", err)
	}

	now := s.now().UTC()
	policy.GuardianID = guardianID
	policy.UpdatedAt = now
	policy.UpdatedBy = actor
	if existing != nil {
		policy.CreatedAt = existing.CreatedAt
		policy.CreatedBy = existing.CreatedBy
	} else {
		policy.CreatedAt = now
		policy.CreatedBy = actor
	}

	if err := s.store.SavePolicy(ctx, policy); err != nil {
		return core.AllocationPolicy{}, fmt.Errorf("save policy: %w", err)
	}
	s.cache.Set(guardianID, policy)
	return policy, nil
}
