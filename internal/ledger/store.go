package ledger

import (
	"context"
	"time"

	"github.com/ficore/backend/internal/models"
)

// Store opens units of work spanning the balance store and the transaction log.
type Store interface {
	Begin(ctx context.Context) (Unit, error)
}

// Unit is one all-or-nothing group of balance and log operations.
// Rollback after Commit is a no-op, so callers always defer it.
type Unit interface {
	// GetBalance returns ErrAccountNotFound when the user has no account row.
	GetBalance(ctx context.Context, userID string) (int64, error)

	// ConditionalDecrement subtracts amount only while the stored balance still
	// equals expected, stamping the account with at. It reports the number of
	// rows changed (0 or 1).
	ConditionalDecrement(ctx context.Context, userID string, amount, expected int64, at time.Time) (int64, error)

	// Append adds an entry to the transaction log. Entries are never updated.
	Append(ctx context.Context, entry *models.CreditTransaction) error

	Commit() error
	Rollback() error
}

// AuditReader is the read-only view of balances and the transaction log.
type AuditReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
	ListEntries(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, error)
	CountEntries(ctx context.Context, userID string) (int, error)
}
