package services

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/ficore/backend/internal/ledger"
	"github.com/ficore/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const budgetColumns = "id, user_id, income, housing, food, transport, dependents, miscellaneous, others, savings_goal, fixed_expenses, variable_expenses, surplus_deficit, created_at"

var budgetTips = []string{
	"Track expenses regularly.",
	"Consider ajo savings.",
	"Optimize data subscriptions.",
	"Plan for dependents.",
}

const customCategoryColor = "#FF9F40"

type BudgetService struct {
	db        *sql.DB
	meter     *Meter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

type CustomCategoryInput struct {
	Name   string        `json:"name" validate:"required,max=50"`
	Amount CurrencyInput `json:"amount"`
}

type CreateBudgetRequest struct {
	Income           CurrencyInput         `json:"income"`
	Housing          CurrencyInput         `json:"housing"`
	Food             CurrencyInput         `json:"food"`
	Transport        CurrencyInput         `json:"transport"`
	Dependents       *int                  `json:"dependents" validate:"required,gte=0"`
	Miscellaneous    CurrencyInput         `json:"miscellaneous"`
	Others           CurrencyInput         `json:"others"`
	SavingsGoal      CurrencyInput         `json:"savings_goal"`
	CustomCategories []CustomCategoryInput `json:"custom_categories" validate:"dive"`
}

type BudgetDashboard struct {
	LatestBudget *models.Budget      `json:"latest_budget"`
	Budgets      []models.Budget     `json:"budgets"`
	Categories   []models.ChartValue `json:"categories"`
	Insights     []string            `json:"insights"`
	Tips         []string            `json:"tips"`
	Pagination   models.Pagination   `json:"pagination"`
}

func NewBudgetService(db *sql.DB, debiter ledger.Debiter, logger *zap.Logger) *BudgetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetService{
		db:        db,
		meter:     NewMeter(db, debiter, logger),
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// CreateBudget stores a monthly budget with derived totals for one credit.
func (s *BudgetService) CreateBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateBudgetRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	budget, receipt, err := s.createBudget(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "budget": budget, "credit_balance": receipt.Balance})
}

func (s *BudgetService) buildBudget(userID string, req CreateBudgetRequest) (*models.Budget, error) {
	for i := range req.CustomCategories {
		req.CustomCategories[i].Name = strings.TrimSpace(req.CustomCategories[i].Name)
	}
	if err := s.validator.Struct(&req); err != nil {
		return nil, err
	}

	budget := &models.Budget{
		ID:               uuid.NewString(),
		UserID:           userID,
		Dependents:       *req.Dependents,
		CustomCategories: []models.BudgetCategory{},
		CreatedAt:        s.now().UTC(),
	}

	fields := []struct {
		name string
		in   CurrencyInput
		dst  *decimal.Decimal
	}{
		{"income", req.Income, &budget.Income},
		{"housing", req.Housing, &budget.Housing},
		{"food", req.Food, &budget.Food},
		{"transport", req.Transport, &budget.Transport},
		{"miscellaneous", req.Miscellaneous, &budget.Miscellaneous},
		{"others", req.Others, &budget.Others},
		{"savings_goal", req.SavingsGoal, &budget.SavingsGoal},
	}
	for _, f := range fields {
		value, err := currencyField(f.name, f.in)
		if err != nil {
			return nil, err
		}
		*f.dst = value
	}

	for _, cat := range req.CustomCategories {
		amount, err := cat.Amount.ValueOr(decimal.Zero)
		if err != nil {
			return nil, newValidationError("Invalid category amount format")
		}
		budget.CustomCategories = append(budget.CustomCategories, models.BudgetCategory{Name: cat.Name, Amount: amount})
	}

	budget.Derive()
	return budget, nil
}

func (s *BudgetService) createBudget(ctx context.Context, userID string, req CreateBudgetRequest) (*models.Budget, *ledger.Receipt, error) {
	budget, err := s.buildBudget(userID, req)
	if err != nil {
		return nil, nil, err
	}

	charge := ledger.DebitRequest{UserID: userID, Amount: ledger.CostAction, Action: "create_budget", ItemID: &budget.ID}
	receipt, err := s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budgets (`+budgetColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			budget.ID, budget.UserID, budget.Income, budget.Housing, budget.Food, budget.Transport,
			budget.Dependents, budget.Miscellaneous, budget.Others, budget.SavingsGoal,
			budget.FixedExpenses, budget.VariableExpenses, budget.SurplusDeficit, budget.CreatedAt); err != nil {
			return err
		}
		for i, cat := range budget.CustomCategories {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO budget_categories (budget_id, position, name, amount) VALUES ($1, $2, $3, $4)`,
				budget.ID, i, cat.Name, cat.Amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return budget, receipt, nil
}

// GetBudgetDashboard returns budgets newest first with a chart of the latest.
func (s *BudgetService) GetBudgetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	page, limit := ParsePagination(r)

	dashboard, err := s.dashboard(r.Context(), userID, page, limit)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (s *BudgetService) dashboard(ctx context.Context, userID string, page, limit int) (*BudgetDashboard, error) {
	budgets, err := s.listBudgets(ctx, s.db,
		`SELECT `+budgetColumns+` FROM budgets WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM budgets WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, err
	}

	dashboard := &BudgetDashboard{
		Budgets:    budgets,
		Categories: []models.ChartValue{},
		Insights:   []string{},
		Tips:       budgetTips,
		Pagination: models.NewPagination(page, limit, total),
	}
	if len(budgets) == 0 {
		return dashboard, nil
	}

	latest := budgets[0]
	dashboard.LatestBudget = &latest
	dashboard.Categories = budgetChart(latest)
	switch {
	case latest.SurplusDeficit.IsPositive():
		dashboard.Insights = append(dashboard.Insights, "You have a budget surplus.")
	case latest.SurplusDeficit.IsNegative():
		dashboard.Insights = append(dashboard.Insights, "You have a budget deficit.")
	}
	return dashboard, nil
}

func budgetChart(b models.Budget) []models.ChartValue {
	chart := []models.ChartValue{
		{Label: "Housing", Value: b.Housing, Color: "#FF6384"},
		{Label: "Food", Value: b.Food, Color: "#36A2EB"},
		{Label: "Transport", Value: b.Transport, Color: "#FFCE56"},
		{Label: "Miscellaneous", Value: b.Miscellaneous, Color: "#4BC0C0"},
		{Label: "Others", Value: b.Others, Color: "#9966FF"},
	}
	for _, cat := range b.CustomCategories {
		chart = append(chart, models.ChartValue{Label: cat.Name, Value: cat.Amount, Color: customCategoryColor})
	}
	return chart
}

// DeleteBudget removes a budget and its custom categories for one credit.
func (s *BudgetService) DeleteBudget(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	receipt, err := s.deleteBudget(r.Context(), userID, chi.URLParam(r, "budgetId"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Budget deleted successfully", "credit_balance": receipt.Balance})
}

func (s *BudgetService) deleteBudget(ctx context.Context, userID, budgetID string) (*ledger.Receipt, error) {
	if budgetID == "" {
		return nil, newValidationError("Budget ID is required")
	}

	charge := ledger.DebitRequest{UserID: userID, Amount: ledger.CostAction, Action: "delete_budget", ItemID: &budgetID}
	return s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		return execOwned(ctx, tx, "Budget", `DELETE FROM budgets WHERE id = $1 AND user_id = $2`, budgetID, userID)
	})
}

// ExportBudgets downloads one budget (one credit) or the history (two credits).
func (s *BudgetService) ExportBudgets(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	doc, err := s.export(r.Context(), userID, chi.URLParam(r, "exportType"), chi.URLParam(r, "budgetId"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeExport(w, "budget", *doc)
}

func (s *BudgetService) export(ctx context.Context, userID, exportType, budgetID string) (*ExportDocument, error) {
	charge, err := exportCharge(userID, "budget", exportType, budgetID, "Budget ID")
	if err != nil {
		return nil, err
	}

	var budgets []models.Budget
	receipt, err := s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		var err error
		if exportType == exportSingle {
			budgets, err = s.listBudgets(ctx, tx,
				`SELECT `+budgetColumns+` FROM budgets WHERE id = $1 AND user_id = $2`, budgetID, userID)
			if err == nil && len(budgets) == 0 {
				return notFound("Budget")
			}
			return err
		}
		budgets, err = s.listBudgets(ctx, tx,
			`SELECT `+budgetColumns+` FROM budgets WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
			userID, exportHistoryLimit)
		return err
	})
	if err != nil {
		return nil, err
	}

	doc := newExportDocument(exportType, s.now(), budgets, len(budgets), receipt)
	return &doc, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// listBudgets runs a budget query and attaches each budget's custom categories.
func (s *BudgetService) listBudgets(ctx context.Context, q queryer, query string, args ...any) ([]models.Budget, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	budgets := []models.Budget{}
	index := map[string]int{}
	for rows.Next() {
		var b models.Budget
		if err := rows.Scan(&b.ID, &b.UserID, &b.Income, &b.Housing, &b.Food, &b.Transport, &b.Dependents,
			&b.Miscellaneous, &b.Others, &b.SavingsGoal, &b.FixedExpenses, &b.VariableExpenses,
			&b.SurplusDeficit, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CustomCategories = []models.BudgetCategory{}
		index[b.ID] = len(budgets)
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(budgets) == 0 {
		return budgets, nil
	}

	ids := make([]string, len(budgets))
	for i, b := range budgets {
		ids[i] = b.ID
	}

	catRows, err := q.QueryContext(ctx,
		`SELECT budget_id, name, amount FROM budget_categories WHERE budget_id = ANY($1) ORDER BY budget_id, position`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer catRows.Close()

	for catRows.Next() {
		var budgetID string
		var cat models.BudgetCategory
		if err := catRows.Scan(&budgetID, &cat.Name, &cat.Amount); err != nil {
			return nil, err
		}
		if i, ok := index[budgetID]; ok {
			budgets[i].CustomCategories = append(budgets[i].CustomCategories, cat)
		}
	}
	if err := catRows.Err(); err != nil {
		return nil, err
	}
	return budgets, nil
}
