// Package core holds the piggybank domain: buckets, kids, allocation
// policies, ledger entries and the money math that ties them together.
//
// All monetary values are scale-2 fixed-point decimals. Binary floats are
// never used for amount computation or comparison.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a decimal string to a positive money amount with
// at most two fractional digits. It accepts both dot and comma decimal
// separators.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("12.345") -> error (too many decimals)
//	ParseAmount("-5") -> error (must be positive)
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, &InvalidRequestError{Reason: "amount is required"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &InvalidRequestError{Reason: "invalid amount: " + s}
	}
	if !d.Equal(d.Truncate(2)) {
		return decimal.Zero, &InvalidRequestError{Reason: "amount must have at most two decimal places: " + s}
	}
	if !d.IsPositive() {
		return decimal.Zero, &InvalidRequestError{Reason: "amount must be positive: " + s}
	}
	return d, nil
}

// SplitDeposit divides a deposit across the four buckets according to the
// policy's percentages. Each bucket amount is amount * pct / 100 rounded
// to two decimals with banker's rounding; any cent-level remainder left
// by the independent roundings is assigned to the spend bucket so the
// four amounts always sum exactly to the deposit total.
func SplitDeposit(amount decimal.Decimal, policy AllocationPolicy) BucketAmounts {
	split := BucketAmounts{
		Charity:    amount.Mul(policy.CharityPct).Div(hundred).RoundBank(2),
		Spend:      amount.Mul(policy.SpendPct).Div(hundred).RoundBank(2),
		Savings:    amount.Mul(policy.SavingsPct).Div(hundred).RoundBank(2),
		Investment: amount.Mul(policy.InvestmentPct).Div(hundred).RoundBank(2),
	}
	if remainder := amount.Sub(split.Total()); !remainder.IsZero() {
		split.Spend = split.Spend.Add(remainder)
	}
	return split
}
