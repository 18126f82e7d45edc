package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	BucketCharity    Bucket = "CHARITY"
	BucketSpend      Bucket = "SPEND"
	BucketSavings    Bucket = "SAVINGS"
	BucketInvestment Bucket = "INVESTMENT"

	EntryDeposit    EntryKind = "DEPOSIT"
	EntryWithdrawal EntryKind = "WITHDRAWAL"
)

// Buckets lists the four allocation buckets in canonical order.
var Buckets = [4]Bucket{BucketCharity, BucketSpend, BucketSavings, BucketInvestment}

type (
	// Bucket is one of the four allocation categories every deposit is
	// split into.
	Bucket string

	// EntryKind distinguishes deposits from withdrawals in the ledger.
	EntryKind string

	// Kid is a dependent sub-account owned by a guardian.
	Kid struct {
		ID         int64
		GuardianID int64
		Name       string
		Age        int
		CreatedAt  time.Time
		UpdatedAt  time.Time
		CreatedBy  string
		UpdatedBy  string
	}

	// AllocationPolicy holds a guardian's deposit split percentages and
	// the monthly withdrawal caps for the savings and investment buckets.
	AllocationPolicy struct {
		GuardianID           int64
		CharityPct           decimal.Decimal
		SpendPct             decimal.Decimal
		SavingsPct           decimal.Decimal
		InvestmentPct        decimal.Decimal
		SavingsMonthlyCap    int
		InvestmentMonthlyCap int
		CreatedAt            time.Time
		UpdatedAt            time.Time
		CreatedBy            string
		UpdatedBy            string
	}

	// BucketAmounts carries one decimal value per bucket. It is used both
	// for split deposit amounts and for the frozen percentage snapshot a
	// deposit entry records.
	BucketAmounts struct {
		Charity    decimal.Decimal
		Spend      decimal.Decimal
		Savings    decimal.Decimal
		Investment decimal.Decimal
	}

	// LedgerEntry is an immutable deposit or withdrawal record. Entries
	// are never updated or deleted after Append.
	LedgerEntry struct {
		ID          int64
		GuardianID  int64
		KidID       int64
		Kind        EntryKind
		Amount      decimal.Decimal
		Description string

		// Deposit entries carry the four split amounts and the
		// percentages in effect at the time.
		Buckets     BucketAmounts
		Percentages BucketAmounts

		// Withdrawal entries carry the single target bucket.
		WithdrawalBucket Bucket

		TransactionAt time.Time
		CreatedAt     time.Time
		CreatedBy     string
	}

	// BucketBalance is the cached running balance per kid, derivable by
	// replaying the kid's ledger. The ledger is authoritative.
	BucketBalance struct {
		KidID      int64
		GuardianID int64
		Amounts    BucketAmounts
		UpdatedAt  time.Time
		CreatedBy  string
		UpdatedBy  string
	}
)

// Valid reports whether b names one of the four buckets.
func (b Bucket) Valid() bool {
	switch b {
	case BucketCharity, BucketSpend, BucketSavings, BucketInvestment:
		return true
	}
	return false
}

// ParseBucket converts a wire string to a Bucket, case-insensitively.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToUpper(strings.TrimSpace(s)))
	if !b.Valid() {
		return "", &InvalidRequestError{Reason: "unknown bucket: " + s}
	}
	return b, nil
}

// For returns the amount stored for the given bucket.
func (a BucketAmounts) For(b Bucket) decimal.Decimal {
	switch b {
	case BucketCharity:
		return a.Charity
	case BucketSpend:
		return a.Spend
	case BucketSavings:
		return a.Savings
	case BucketInvestment:
		return a.Investment
	}
	return decimal.Zero
}

// Add returns the element-wise sum of a and other.
func (a BucketAmounts) Add(other BucketAmounts) BucketAmounts {
	return BucketAmounts{
		Charity:    a.Charity.Add(other.Charity),
		Spend:      a.Spend.Add(other.Spend),
		Savings:    a.Savings.Add(other.Savings),
		Investment: a.Investment.Add(other.Investment),
	}
}

// Sub returns the element-wise difference of a and other.
func (a BucketAmounts) Sub(other BucketAmounts) BucketAmounts {
	return BucketAmounts{
		Charity:    a.Charity.Sub(other.Charity),
		Spend:      a.Spend.Sub(other.Spend),
		Savings:    a.Savings.Sub(other.Savings),
		Investment: a.Investment.Sub(other.Investment),
	}
}

// Total returns the sum of the four bucket values. The grand total of a
// balance is always derived this way, never tracked independently.
func (a BucketAmounts) Total() decimal.Decimal {
	return a.Charity.Add(a.Spend).Add(a.Savings).Add(a.Investment)
}

// Negative reports whether any bucket value is below zero.
func (a BucketAmounts) Negative() bool {
	return a.Charity.IsNegative() || a.Spend.IsNegative() ||
		a.Savings.IsNegative() || a.Investment.IsNegative()
}

// WithBucket returns a copy of a with the given bucket set to v.
func (a BucketAmounts) WithBucket(b Bucket, v decimal.Decimal) BucketAmounts {
	switch b {
	case BucketCharity:
		a.Charity = v
	case BucketSpend:
		a.Spend = v
	case BucketSavings:
		a.Savings = v
	case BucketInvestment:
		a.Investment = v
	}
	return a
}

// Total returns the kid's grand total across all four buckets.
func (b BucketBalance) Total() decimal.Decimal {
	return b.Amounts.Total()
}

// DefaultPolicy returns the 25/25/25/25 split with a cap of two monthly
// withdrawals each for savings and investment. It is materialized the
// first time a guardian's policy is needed.
func DefaultPolicy(guardianID int64) AllocationPolicy {
	quarter := decimal.RequireFromString("25.00")
	return AllocationPolicy{
		GuardianID:           guardianID,
		CharityPct:           quarter,
		SpendPct:             quarter,
		SavingsPct:           quarter,
		InvestmentPct:        quarter,
		SavingsMonthlyCap:    2,
		InvestmentMonthlyCap: 2,
	}
}

// Percentages returns the policy's four percentages as a BucketAmounts.
func (p AllocationPolicy) Percentages() BucketAmounts {
	return BucketAmounts{
		Charity:    p.CharityPct,
		Spend:      p.SpendPct,
		Savings:    p.SavingsPct,
		Investment: p.InvestmentPct,
	}
}

// CapFor returns the monthly withdrawal cap for the bucket and whether
// the bucket is capped at all. Charity and spend are never capped.
func (p AllocationPolicy) CapFor(b Bucket) (int, bool) {
	switch b {
	case BucketSavings:
		return p.SavingsMonthlyCap, true
	case BucketInvestment:
		return p.InvestmentMonthlyCap, true
	}
	return 0, false
}

// Validate checks that each percentage is within [0,100], that the four
// sum to exactly 100.00 and that both caps are within [0,10]. Comparison
// is exact decimal, never floating point.
func (p AllocationPolicy) Validate() error {
	pcts := p.Percentages()
	for _, b := range Buckets {
		v := pcts.For(b)
		if v.IsNegative() || v.GreaterThan(hundred) {
			return &InvalidPolicyError{Reason: "percentage for " + string(b) + " must be between 0 and 100, got " + v.String()}
		}
	}
	if sum := pcts.Total(); !sum.Equal(hundred) {
		return &InvalidPolicyError{Reason: "percentages must sum to 100.00, got " + sum.StringFixed(2)}
	}
	if p.SavingsMonthlyCap < 0 || p.SavingsMonthlyCap > 10 {
		return &InvalidPolicyError{Reason: "monthly withdrawal cap for savings must be between 0 and 10"}
	}
	if p.InvestmentMonthlyCap < 0 || p.InvestmentMonthlyCap > 10 {
		return &InvalidPolicyError{Reason: "monthly withdrawal cap for investment must be between 0 and 10"}
	}
	return nil
}

// Validate checks the kid's mutable fields.
func (k Kid) Validate() error {
	if len(strings.TrimSpace(k.Name)) == 0 {
		return &InvalidRequestError{Reason: "kid name is required"}
	}
	if len(k.Name) > 100 {
		return &InvalidRequestError{Reason: "kid name too long (max 100 characters)"}
	}
	if k.Age < 0 || k.Age > 17 {
		return &InvalidRequestError{Reason: "kid age must be between 0 and 17"}
	}
	return nil
}
