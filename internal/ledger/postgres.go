package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ficore/backend/internal/models"
)

const (
	queryGetBalance = `
		SELECT credit_balance
		FROM accounts
		WHERE user_id = $1`

	// Compare-and-set: the row only changes while it still holds the balance
	// read earlier in the same unit of work.
	queryConditionalDecrement = `
		UPDATE accounts
		SET credit_balance = credit_balance - $2, updated_at = $3
		WHERE user_id = $1 AND credit_balance = $4 AND credit_balance >= $2`

	queryAppendTransaction = `
		INSERT INTO credit_transactions (id, user_id, action, amount, item_id, balance_after, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	queryListTransactions = `
		SELECT id, user_id, action, amount, item_id, balance_after, status, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY seq DESC
		LIMIT $2 OFFSET $3`

	queryCountTransactions = `
		SELECT COUNT(*)
		FROM credit_transactions
		WHERE user_id = $1`
)

var (
	_ Store       = (*PostgresStore)(nil)
	_ AuditReader = (*PostgresStore)(nil)
)

// PostgresStore keeps balances in accounts.credit_balance and the log in
// credit_transactions. It holds no balance state in process.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Begin(ctx context.Context) (Unit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresUnit{tx: tx}, nil
}

func (s *PostgresStore) Balance(ctx context.Context, userID string) (int64, error) {
	return getBalance(ctx, s.db, userID)
}

func (s *PostgresStore) ListEntries(ctx context.Context, userID string, limit, offset int) ([]models.CreditTransaction, error) {
	rows, err := s.db.QueryContext(ctx, queryListTransactions, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list credit transactions: %w", err)
	}
	defer rows.Close()

	entries := []models.CreditTransaction{}
	for rows.Next() {
		var entry models.CreditTransaction
		var itemID sql.NullString
		var status string
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.Amount, &itemID,
			&entry.BalanceAfter, &status, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan credit transaction: %w", err)
		}
		if itemID.Valid {
			entry.ItemID = &itemID.String
		}
		entry.Status = models.CreditStatus(status)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) CountEntries(ctx context.Context, userID string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, queryCountTransactions, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count credit transactions: %w", err)
	}
	return count, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getBalance(ctx context.Context, q queryRower, userID string) (int64, error) {
	var balance int64
	err := q.QueryRowContext(ctx, queryGetBalance, userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for user %s: %w", userID, err)
	}
	return balance, nil
}

type postgresUnit struct {
	tx *sql.Tx
}

func (u *postgresUnit) GetBalance(ctx context.Context, userID string) (int64, error) {
	return getBalance(ctx, u.tx, userID)
}

func (u *postgresUnit) ConditionalDecrement(ctx context.Context, userID string, amount, expected int64, at time.Time) (int64, error) {
	result, err := u.tx.ExecContext(ctx, queryConditionalDecrement, userID, amount, at, expected)
	if err != nil {
		return 0, fmt.Errorf("failed to decrement balance for user %s: %w", userID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rowsAffected, nil
}

func (u *postgresUnit) Append(ctx context.Context, entry *models.CreditTransaction) error {
	_, err := u.tx.ExecContext(ctx, queryAppendTransaction,
		entry.ID, entry.UserID, entry.Action, entry.Amount, entry.ItemID,
		entry.BalanceAfter, string(entry.Status), entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append credit transaction: %w", err)
	}
	return nil
}

func (u *postgresUnit) Commit() error {
	return u.tx.Commit()
}

func (u *postgresUnit) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
