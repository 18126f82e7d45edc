package services

import (
	"context"
	"fmt"

	"piggybank/internal/core"

	"github.com/shopspring/decimal"
)

// QueryService is the read side: balance summaries, recent activity and
// per-bucket availability. It only ever reads the ledger and the
// projected balances, never writes.
type QueryService struct {
	ledger   LedgerStore
	balances BalanceStore
	kids     KidStore
}

func NewQueryService(ledger LedgerStore, balances BalanceStore, kids KidStore) *QueryService {
	return &QueryService{ledger: ledger, balances: balances, kids: kids}
}

// KidBalanceSummary is one kid's projected balance with identity fields
// for display.
type KidBalanceSummary struct {
	KidID   int64
	Name    string
	Age     int
	Amounts core.BucketAmounts
	Total   decimal.Decimal
}

// BalanceSummary returns the kid's four bucket balances and grand
// total. Kids without a balance row report all zeros.
func (s *QueryService) BalanceSummary(ctx context.Context, guardianID, kidID int64) (KidBalanceSummary, error) {
	kid, err := s.kids.GetKid(ctx, kidID, guardianID)
	if err != nil {
		return KidBalanceSummary{}, fmt.Errorf("get kid: %w", err)
	}
	if kid == nil {
		return KidBalanceSummary{}, &core.InvalidRequestError{Reason: fmt.Sprintf("kid %d not found for guardian %d", kidID, guardianID)}
	}

	summary := KidBalanceSummary{KidID: kidID, Name: kid.Name, Age: kid.Age, Total: decimal.Zero}
	balance, err := s.balances.GetBalance(ctx, kidID)
	if err != nil {
		return KidBalanceSummary{}, fmt.Errorf("get balance: %w", err)
	}
	if balance != nil {
		summary.Amounts = balance.Amounts
		summary.Total = balance.Total()
	}
	return summary, nil
}

// GuardianTotals aggregates bucket balances across all of a guardian's
// kids, including the per-kid rows the totals were computed from.
type GuardianTotals struct {
	Kids    []KidBalanceSummary
	Amounts core.BucketAmounts
	Total   decimal.Decimal
}

// TotalsAcrossDependents sums every kid's balance for the guardian.
// Kids without a balance row contribute zero.
func (s *QueryService) TotalsAcrossDependents(ctx context.Context, guardianID int64) (GuardianTotals, error) {
	kids, err := s.kids.ListKids(ctx, guardianID)
	if err != nil {
		return GuardianTotals{}, fmt.Errorf("list kids: %w", err)
	}
	balances, err := s.balances.ListBalancesForGuardian(ctx, guardianID)
	if err != nil {
		return GuardianTotals{}, fmt.Errorf("list balances: %w", err)
	}

	totals := GuardianTotals{Total: decimal.Zero}
	for _, kid := range kids {
		summary := KidBalanceSummary{KidID: kid.ID, Name: kid.Name, Age: kid.Age, Total: decimal.Zero}
		if balance, ok := balances[kid.ID]; ok {
			summary.Amounts = balance.Amounts
			summary.Total = balance.Total()
		}
		totals.Kids = append(totals.Kids, summary)
		totals.Amounts = totals.Amounts.Add(summary.Amounts)
	}
	totals.Total = totals.Amounts.Total()
	return totals, nil
}

// RecentActivity returns the kid's last n ledger entries, newest first.
func (s *QueryService) RecentActivity(ctx context.Context, guardianID, kidID int64, n int) ([]core.LedgerEntry, error) {
	kid, err := s.kids.GetKid(ctx, kidID, guardianID)
	if err != nil {
		return nil, fmt.Errorf("get kid: %w", err)
	}
	if kid == nil {
		return nil, &core.InvalidRequestError{Reason: fmt.Sprintf("kid %d not found for guardian %d", kidID, guardianID)}
	}
	if n <= 0 {
		n = 10
	}

	entries, err := s.ledger.ListEntriesForKid(ctx, kidID, n, 0)
	if err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}
	return entries, nil
}

// AvailableBalance returns the current balance of one bucket. Kids
// without a balance row have zero available everywhere.
func (s *QueryService) AvailableBalance(ctx context.Context, guardianID, kidID int64, bucket core.Bucket) (decimal.Decimal, error) {
	if !bucket.Valid() {
		return decimal.Zero, &core.InvalidRequestError{Reason: "unknown bucket: " + string(bucket)}
	}
	kid, err := s.kids.GetKid(ctx, kidID, guardianID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get kid: %w", err)
	}
	if kid == nil {
		return decimal.Zero, &core.InvalidRequestError{Reason: fmt.Sprintf("kid %d not found for guardian %d", kidID, guardianID)}
	}

	balance, err := s.balances.GetBalance(ctx, kidID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	if balance == nil {
		return decimal.Zero, nil
	}
	return balance.Amounts.For(bucket), nil
}

// KidDetails combines a kid's identity, balances and recent activity in
// one view.
type KidDetails struct {
	Kid     core.Kid
	Amounts core.BucketAmounts
	Total   decimal.Decimal
	Recent  []core.LedgerEntry
}

// KidDetails returns the full per-kid view: identity, the four bucket
// balances and the last ten entries.
func (s *QueryService) KidDetails(ctx context.Context, guardianID, kidID int64) (KidDetails, error) {
	kid, err := s.kids.GetKid(ctx, kidID, guardianID)
	if err != nil {
		return KidDetails{}, fmt.Errorf("get kid: %w", err)
	}
	if kid == nil {
		return KidDetails{}, &core.InvalidRequestError{Reason: fmt.Sprintf("kid %d not found for guardian %d", kidID, guardianID)}
	}

	details := KidDetails{Kid: *kid, Total: decimal.Zero}
	balance, err := s.balances.GetBalance(ctx, kidID)
	if err != nil {
		return KidDetails{}, fmt.Errorf("get balance: %w", err)
	}
	if balance != nil {
		details.Amounts = balance.Amounts
		details.Total = balance.Total()
	}

	recent, err := s.ledger.ListEntriesForKid(ctx, kidID, 10, 0)
	if err != nil {
		return KidDetails{}, fmt.Errorf("list recent entries: %w", err)
	}
	details.Recent = recent
	return details, nil
}
