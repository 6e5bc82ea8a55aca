package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Budget struct {
	ID               string           `json:"id" db:"id"`
	UserID           string           `json:"user_id" db:"user_id"`
	Income           decimal.Decimal  `json:"income" db:"income"`
	Housing          decimal.Decimal  `json:"housing" db:"housing"`
	Food             decimal.Decimal  `json:"food" db:"food"`
	Transport        decimal.Decimal  `json:"transport" db:"transport"`
	Dependents       int              `json:"dependents" db:"dependents"`
	Miscellaneous    decimal.Decimal  `json:"miscellaneous" db:"miscellaneous"`
	Others           decimal.Decimal  `json:"others" db:"others"`
	SavingsGoal      decimal.Decimal  `json:"savings_goal" db:"savings_goal"`
	FixedExpenses    decimal.Decimal  `json:"fixed_expenses" db:"fixed_expenses"`
	VariableExpenses decimal.Decimal  `json:"variable_expenses" db:"variable_expenses"`
	SurplusDeficit   decimal.Decimal  `json:"surplus_deficit" db:"surplus_deficit"`
	CustomCategories []BudgetCategory `json:"custom_categories"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

type BudgetCategory struct {
	Name   string          `json:"name" db:"name"`
	Amount decimal.Decimal `json:"amount" db:"amount"`
}

// Derive fills the fixed, variable and surplus/deficit totals.
func (b *Budget) Derive() {
	b.FixedExpenses = b.Housing.Add(b.Food).Add(b.Transport)
	b.VariableExpenses = b.Miscellaneous.Add(b.Others)
	b.SurplusDeficit = b.Income.Sub(b.FixedExpenses).Sub(b.VariableExpenses).Sub(b.SavingsGoal)
}
