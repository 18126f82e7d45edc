package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"piggybank/internal/core"
)

// KidService manages a guardian's dependents.
type KidService struct {
	kids   KidStore
	ledger LedgerStore
	now    func() time.Time
}

func NewKidService(kids KidStore, ledger LedgerStore) *KidService {
	return &KidService{kids: kids, ledger: ledger, now: time.Now}
}

// CreateKid adds a new dependent under the guardian.
func (s *KidService) CreateKid(ctx context.Context, guardianID int64, name string, age int, actor string) (core.Kid, error) {
	now := s.now().UTC()
	kid := core.Kid{
		GuardianID: guardianID,
		Name:       name,
		Age:        age,
		CreatedAt:  now,
		UpdatedAt:  now,
		CreatedBy:  actor,
		UpdatedBy:  actor,
	}
	if err := kid.Validate(); err != nil {
		return core.Kid{}, err
	}

	saved, err := s.kids.CreateKid(ctx, kid)
	if err != nil {
		return core.Kid{}, fmt.Errorf("create kid: %w", err)
	}
	return saved, nil
}

// GetKid returns a kid owned by the guardian.
func (s *KidService) GetKid(ctx context.Context, guardianID, kidID int64) (core.Kid, error) {
	kid, err := s.kids.GetKid(ctx, kidID, guardianID)
	if err != nil {
		return core.Kid{}, fmt.Errorf("get kid: %w", err)
	}
	if kid == nil {
		return core.Kid{}, &core.InvalidRequestError{Reason: fmt.Sprintf("kid %d not found for guardian %d", kidID, guardianID)}
	}
	return *kid, nil
}

// ListKids returns the guardian's kids newest first.
func (s *KidService) ListKids(ctx context.Context, guardianID int64) ([]core.Kid, error) {
	kids, err := s.kids.ListKids(ctx, guardianID)
	if err != nil {
		return nil, fmt.Errorf("list kids: %w", err)
	}
	return kids, nil
}

// UpdateKid changes a kid's name and age, the only mutable fields.
func (s *KidService) UpdateKid(ctx context.Context, guardianID, kidID int64, name string, age int, actor string) (core.Kid, error) {
	kid, err := s.GetKid(ctx, guardianID, kidID)
	if err != nil {
		return core.Kid{}, err
	}

	kid.Name = name
	kid.Age = age
	kid.UpdatedAt = s.now().UTC()
	kid.UpdatedBy = actor
	if err := kid.Validate(); err != nil {
		return core.Kid{}, err
	}

	if err := s.kids.UpdateKid(ctx, kid); err != nil {
		return core.Kid{}, fmt.Errorf("update kid: %w", err)
	}
	return kid, nil
}

// DeleteKid removes a dependent. Deletion is refused once any ledger
// entry exists for the kid: history is never discarded.
func (s *KidService) DeleteKid(ctx context.Context, guardianID, kidID int64, actor string) error {
	if _, err := s.GetKid(ctx, guardianID, kidID); err != nil {
		return err
	}

	has, err := s.ledger.HasEntriesForKid(ctx, kidID)
	if err != nil {
		return fmt.Errorf("check kid ledger: %w", err)
	}
	if has {
		return &core.InvalidRequestError{Reason: fmt.Sprintf("kid %d has ledger history and cannot be deleted", kidID)}
	}

	if err := s.kids.DeleteKid(ctx, kidID, guardianID); err != nil {
		return fmt.Errorf("delete kid: %w", err)
	}

	slog.InfoContext(ctx, "Kid deleted", "kid_id", kidID, "guardian_id", guardianID, "actor", actor)
	return nil
}
