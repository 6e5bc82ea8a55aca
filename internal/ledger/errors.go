package ledger

import "errors"

// Caller errors. Returned before any storage is touched.
var (
	ErrInvalidRequest = errors.New("invalid debit request")
	ErrInvalidAmount  = errors.New("amount is not a billable credit cost")
)

// Outcome errors of a debit attempt.
var (
	ErrAccountNotFound     = errors.New("credit account not found")
	ErrInsufficientBalance = errors.New("insufficient credits")
	ErrWriteConflict       = errors.New("credit balance changed concurrently")
	ErrStorageFailure      = errors.New("credit ledger storage failure")
)

// IsRetryable reports whether the enclosing operation may be retried by the caller.
// The ledger itself never retries.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}
