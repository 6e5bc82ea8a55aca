package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const DefaultShoppingCategory = "Miscellaneous"

type ShoppingList struct {
	ID                 string          `json:"id" db:"id"`
	UserID             string          `json:"user_id" db:"user_id"`
	ListName           string          `json:"list_name" db:"list_name"`
	Budget             decimal.Decimal `json:"budget" db:"budget"`
	Items              []ShoppingItem  `json:"items"`
	TotalEstimatedCost decimal.Decimal `json:"total_estimated_cost"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

type ShoppingItem struct {
	ID            string          `json:"id" db:"id"`
	ListID        string          `json:"list_id" db:"list_id"`
	Name          string          `json:"name" db:"name"`
	EstimatedCost decimal.Decimal `json:"estimated_cost" db:"estimated_cost"`
	Quantity      int             `json:"quantity" db:"quantity"`
	Category      string          `json:"category" db:"category"`
	IsPurchased   bool            `json:"is_purchased" db:"is_purchased"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// LineTotal is the estimated cost times the quantity.
func (i ShoppingItem) LineTotal() decimal.Decimal {
	return i.EstimatedCost.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Recalculate refreshes TotalEstimatedCost from the items.
func (l *ShoppingList) Recalculate() {
	total := decimal.Zero
	for _, item := range l.Items {
		total = total.Add(item.LineTotal())
	}
	l.TotalEstimatedCost = total
}

// SpentTotal sums the line totals of purchased items.
func (l *ShoppingList) SpentTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range l.Items {
		if item.IsPurchased {
			total = total.Add(item.LineTotal())
		}
	}
	return total
}
