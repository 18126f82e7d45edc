package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Stable machine-readable error codes exposed at the API boundary.
const (
	CodeInvalidRequest          = "INVALID_REQUEST"
	CodeInvalidPolicy           = "INVALID_POLICY"
	CodeWithdrawalLimitExceeded = "WITHDRAWAL_LIMIT_EXCEEDED"
	CodeInsufficientBalance     = "INSUFFICIENT_BALANCE"
	CodeProjectionInconsistency = "PROJECTION_INCONSISTENCY"
	CodeStorageUnavailable      = "STORAGE_UNAVAILABLE"
)

// Sentinel errors for errors.Is checks across layers. The typed errors
// below match their sentinel through an Is method, so callers can branch
// on the kind without losing the detail fields.
var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidPolicy           = errors.New("invalid policy")
	ErrWithdrawalLimitExceeded = errors.New("withdrawal limit exceeded")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrProjectionInconsistency = errors.New("projection inconsistency")
	ErrStorageUnavailable      = errors.New("storage unavailable")
)

// InvalidRequestError is a malformed or owner-mismatched input. Never
// retried; the caller must fix the request.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string { return "invalid request: " + e.Reason }

func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

// InvalidPolicyError is a percentage or cap validation failure.
type InvalidPolicyError struct {
	Reason string
}

func (e *InvalidPolicyError) Error() string { return "invalid policy: " + e.Reason }

func (e *InvalidPolicyError) Is(target error) bool { return target == ErrInvalidPolicy }

// WithdrawalLimitError reports that the monthly cap for a bucket has
// been reached. It carries the limit so the message can state it.
type WithdrawalLimitError struct {
	Bucket Bucket
	Limit  int
}

func (e *WithdrawalLimitError) Error() string {
	return fmt.Sprintf("monthly withdrawal limit reached for %s bucket, limit: %d", e.Bucket, e.Limit)
}

func (e *WithdrawalLimitError) Is(target error) bool { return target == ErrWithdrawalLimitExceeded }

// InsufficientBalanceError reports a withdrawal larger than the bucket's
// available balance.
type InsufficientBalanceError struct {
	Bucket    Bucket
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance in %s bucket: requested %s, available %s",
		e.Bucket, e.Requested.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// ProjectionError reports that a ledger append succeeded but folding the
// entry into the cached balance failed. The ledger remains authoritative;
// the balance is recovered by replaying it, so this error is surfaced
// distinctly instead of rolling anything back.
type ProjectionError struct {
	EntryID int64
	KidID   int64
	Err     error
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("entry %d persisted but balance projection for kid %d failed: %v", e.EntryID, e.KidID, e.Err)
}

func (e *ProjectionError) Is(target error) bool { return target == ErrProjectionInconsistency }

func (e *ProjectionError) Unwrap() error { return e.Err }

// StorageError wraps an underlying store failure. Safe to retry the
// whole operation: nothing is persisted before the ledger append.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return "storage unavailable: " + e.Op + ": " + e.Err.Error() }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func (e *StorageError) Unwrap() error { return e.Err }

// CodeFor maps an error to its stable machine-readable code. Unknown
// errors map to CodeStorageUnavailable, the only safe-to-retry bucket.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrInvalidPolicy):
		return CodeInvalidPolicy
	case errors.Is(err, ErrWithdrawalLimitExceeded):
		return CodeWithdrawalLimitExceeded
	case errors.Is(err, ErrInsufficientBalance):
		return CodeInsufficientBalance
	case errors.Is(err, ErrProjectionInconsistency):
		return CodeProjectionInconsistency
	default:
		return CodeStorageUnavailable
	}
}
