package models

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	BillFrequencies = []string{"one-time", "weekly", "monthly", "quarterly"}
	BillCategories  = []string{"Utilities", "Rent", "Food", "Transport", "Insurance", "Healthcare", "Education", "Entertainment", "Miscellaneous"}
	BillStatuses    = []string{"pending", "paid", "overdue"}
)

const (
	BillStatusPending = "pending"
	BillStatusPaid    = "paid"
	BillStatusOverdue = "overdue"
)

type Bill struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	Name         string          `json:"name" db:"name"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	DueDate      time.Time       `json:"due_date" db:"due_date"`
	Frequency    string          `json:"frequency" db:"frequency"`
	Category     string          `json:"category" db:"category"`
	Status       string          `json:"status" db:"status"`
	ReminderDays int             `json:"reminder_days" db:"reminder_days"`
	Notes        string          `json:"notes" db:"notes"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// ChartValue is one labelled slice of a dashboard chart.
type ChartValue struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
	Color string          `json:"color,omitempty"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewPagination derives the page count from total and limit.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}
