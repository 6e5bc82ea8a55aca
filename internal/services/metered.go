package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ficore/backend/internal/ledger"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Meter runs a metered feature's domain work and its credit debit together.
// The domain transaction is committed only after the debit succeeds, so a
// rejected debit leaves no domain change behind.
//
// Each run holds a domain connection while the debit takes a second one from
// the same pool, so concurrent runs are capped at half the pool size.
type Meter struct {
	db      *sql.DB
	debiter ledger.Debiter
	logger  *zap.Logger
	slots   *semaphore.Weighted // nil when the pool is unbounded
}

func NewMeter(db *sql.DB, debiter ledger.Debiter, logger *zap.Logger) *Meter {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Meter{db: db, debiter: debiter, logger: logger}
	if maxOpen := db.Stats().MaxOpenConnections; maxOpen > 0 {
		m.slots = semaphore.NewWeighted(int64(max(maxOpen/2, 1)))
	}
	return m
}

// Run executes work inside a domain transaction, debits charge, then commits.
// The debit runs in its own unit of work on a second connection.
func (m *Meter) Run(ctx context.Context, charge ledger.DebitRequest, work func(tx *sql.Tx) error) (*ledger.Receipt, error) {
	if m.slots != nil {
		if err := m.slots.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("wait for %s slot: %w", charge.Action, err)
		}
		defer m.slots.Release(1)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin %s: %w", charge.Action, err)
	}
	defer tx.Rollback()

	if err := work(tx); err != nil {
		return nil, err
	}

	receipt, err := m.debiter.Debit(ctx, charge)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		// Credits are spent but the domain change is lost.
		m.logger.Error("Domain commit failed after debit",
			zap.String("user_id", charge.UserID),
			zap.String("action", charge.Action),
			zap.String("entry_id", receipt.EntryID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("commit %s: %w", charge.Action, err)
	}

	m.logger.Debug("Metered action completed",
		zap.String("user_id", charge.UserID),
		zap.String("action", charge.Action),
		zap.Int64("balance", receipt.Balance),
	)
	return receipt, nil
}
