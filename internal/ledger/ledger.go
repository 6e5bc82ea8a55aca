// Package ledger meters user actions in credits. Every debit attempt checks the
// balance, decrements it with a compare-and-set update and appends exactly one
// transaction log entry, all inside a single unit of work.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ficore/backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultStartingBalance is granted to every new account.
	DefaultStartingBalance int64 = 100

	DefaultTxTimeout = 5 * time.Second
)

// Billable costs recognised out of the box: single actions cost 1, bulk and
// history exports cost 2.
const (
	CostAction int64 = 1
	CostBulk   int64 = 2
)

// DebitRequest describes one billable action.
type DebitRequest struct {
	UserID string
	Amount int64
	Action string
	ItemID *string
}

// Receipt confirms a committed debit.
type Receipt struct {
	EntryID   string
	Balance   int64
	Timestamp time.Time
}

// Debiter is the contract feature handlers depend on.
type Debiter interface {
	Debit(ctx context.Context, req DebitRequest) (*Receipt, error)
}

var _ Debiter = (*Service)(nil)

type Service struct {
	store     Store
	logger    *zap.Logger
	costs     map[int64]struct{}
	txTimeout time.Duration
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

// WithAllowedCosts replaces the set of accepted debit amounts.
func WithAllowedCosts(costs ...int64) Option {
	return func(s *Service) {
		s.costs = make(map[int64]struct{}, len(costs))
		for _, c := range costs {
			s.costs[c] = struct{}{}
		}
	}
}

// WithTxTimeout bounds every unit of work.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.txTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:     store,
		logger:    logger,
		txTimeout: DefaultTxTimeout,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	WithAllowedCosts(CostAction, CostBulk)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Debit charges req.Amount credits to req.UserID. It is a single attempt: a
// lost compare-and-set race is reported as ErrWriteConflict and never retried.
// Identical calls are not deduplicated.
func (s *Service) Debit(ctx context.Context, req DebitRequest) (*Receipt, error) {
	if err := s.validate(req); err != nil {
		s.logger.Error("Rejected credit debit",
			zap.String("user_id", req.UserID),
			zap.Int64("amount", req.Amount),
			zap.String("action", req.Action),
			zap.Error(err))
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	unit, err := s.store.Begin(ctx)
	if err != nil {
		return nil, s.storageFailure(req, "begin unit of work", err)
	}
	defer unit.Rollback()

	balance, err := unit.GetBalance(ctx, req.UserID)
	if errors.Is(err, ErrAccountNotFound) {
		s.logger.Error("Credit account not found",
			zap.String("user_id", req.UserID),
			zap.String("action", req.Action))
		return nil, fmt.Errorf("%w: user %s", ErrAccountNotFound, req.UserID)
	}
	if err != nil {
		return nil, s.storageFailure(req, "read balance", err)
	}

	if balance < req.Amount {
		if err := s.commitFailure(ctx, unit, req, balance); err != nil {
			return nil, s.storageFailure(req, "record insufficient balance", err)
		}
		s.logger.Warn("Insufficient credits",
			zap.String("user_id", req.UserID),
			zap.Int64("required", req.Amount),
			zap.Int64("available", balance),
			zap.String("action", req.Action))
		return nil, fmt.Errorf("%w: required %d, available %d", ErrInsufficientBalance, req.Amount, balance)
	}

	at := s.now().UTC()
	affected, err := unit.ConditionalDecrement(ctx, req.UserID, req.Amount, balance, at)
	if err != nil {
		return nil, s.storageFailure(req, "decrement balance", err)
	}
	if affected == 0 {
		if err := s.commitFailure(ctx, unit, req, balance); err != nil {
			return nil, s.storageFailure(req, "record write conflict", err)
		}
		s.logger.Warn("Credit balance changed before debit could apply",
			zap.String("user_id", req.UserID),
			zap.Int64("expected_balance", balance),
			zap.Int64("amount", req.Amount),
			zap.String("action", req.Action))
		return nil, fmt.Errorf("%w: user %s", ErrWriteConflict, req.UserID)
	}

	entry := s.newEntry(req, models.CreditStatusCompleted, balance-req.Amount, at)
	if err := unit.Append(ctx, entry); err != nil {
		return nil, s.storageFailure(req, "append transaction", err)
	}
	if err := unit.Commit(); err != nil {
		return nil, s.storageFailure(req, "commit", err)
	}

	s.logger.Info("Deducted credits",
		zap.String("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.String("action", req.Action),
		zap.Int64("new_balance", entry.BalanceAfter),
		zap.String("entry_id", entry.ID))

	return &Receipt{EntryID: entry.ID, Balance: entry.BalanceAfter, Timestamp: entry.Timestamp}, nil
}

func (s *Service) validate(req DebitRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Action) == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}
	if _, ok := s.costs[req.Amount]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, req.Amount)
	}
	return nil
}

// commitFailure audits a debit that did not move the balance. The balance is
// untouched on this path, so committing leaves only the log entry behind.
func (s *Service) commitFailure(ctx context.Context, unit Unit, req DebitRequest, balance int64) error {
	if err := unit.Append(ctx, s.newEntry(req, models.CreditStatusFailed, balance, s.now().UTC())); err != nil {
		return err
	}
	return unit.Commit()
}

func (s *Service) newEntry(req DebitRequest, status models.CreditStatus, balanceAfter int64, at time.Time) *models.CreditTransaction {
	return &models.CreditTransaction{
		ID:           s.newID(),
		UserID:       req.UserID,
		Action:       req.Action,
		Amount:       -req.Amount,
		ItemID:       req.ItemID,
		BalanceAfter: balanceAfter,
		Status:       status,
		Timestamp:    at,
	}
}

func (s *Service) storageFailure(req DebitRequest, op string, err error) error {
	s.logger.Error("Credit debit aborted",
		zap.String("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
		zap.String("action", req.Action),
		zap.String("op", op),
		zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}
