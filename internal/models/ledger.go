package models

import (
	"time"
)

type CreditStatus string

const (
	CreditStatusCompleted CreditStatus = "completed"
	CreditStatusFailed    CreditStatus = "failed"
)

// CreditTransaction is one row of the append-only credit transaction log.
// A row is written for every debit attempt, whether or not the balance moved.
type CreditTransaction struct {
	ID           string       `json:"id" db:"id"`
	UserID       string       `json:"user_id" db:"user_id"`
	Action       string       `json:"action" db:"action"`
	Amount       int64        `json:"amount" db:"amount"` // negative for debits
	ItemID       *string      `json:"item_id" db:"item_id"`
	BalanceAfter int64        `json:"balance_after" db:"balance_after"`
	Status       CreditStatus `json:"status" db:"status"`
	Timestamp    time.Time    `json:"timestamp" db:"created_at"`
}

type Account struct {
	UserID        string    `json:"user_id" db:"user_id"`
	CreditBalance int64     `json:"credit_balance" db:"credit_balance"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}
