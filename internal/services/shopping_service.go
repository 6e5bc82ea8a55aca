package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

const (
	shoppingListColumns = "id, user_id, list_name, budget, created_at, updated_at"
	shoppingItemColumns = "id, list_id, name, estimated_cost, quantity, category, is_purchased, created_at"
)

var shoppingTips = []string{
	"Prioritize essential items.",
	"Compare prices before purchasing.",
	"Review your budget regularly.",
}

type ShoppingService struct {
	db        *sql.DB
	meter     *Meter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

type ShoppingItemInput struct {
	Name          string        `json:"name" validate:"required,max=50"`
	EstimatedCost CurrencyInput `json:"estimated_cost"`
	Quantity      *int          `json:"quantity" validate:"omitempty,gte=1"`
	Category      string        `json:"category" validate:"max=50"`
}

type CreateShoppingListRequest struct {
	ListName string              `json:"list_name" validate:"required,max=50"`
	Budget   CurrencyInput       `json:"budget"`
	Items    []ShoppingItemInput `json:"items" validate:"dive"`
}

type ShoppingSummary struct {
	TotalLists int             `json:"total_lists"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

type ShoppingDashboard struct {
	ShoppingLists []models.ShoppingList `json:"shopping_lists"`
	LatestList    *models.ShoppingList  `json:"latest_list"`
	Categories    []models.ChartValue   `json:"categories"`
	Summary       ShoppingSummary       `json:"summary"`
	Insights      []string              `json:"insights"`
	Tips          []string              `json:"tips"`
	Pagination    models.Pagination     `json:"pagination"`
}

func NewShoppingService(db *sql.DB, debiter ledger.Debiter, logger *zap.Logger) *ShoppingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShoppingService{
		db:        db,
		meter:     NewMeter(db, debiter, logger),
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ShoppingService) newItem(listID string, in ShoppingItemInput, now time.Time) (models.ShoppingItem, error) {
	cost, err := in.EstimatedCost.ValueOr(decimal.Zero)
	if err != nil {
		return models.ShoppingItem{}, newValidationError("Invalid estimated_cost format")
	}
	quantity := 1
	if in.Quantity != nil {
		quantity = *in.Quantity
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = models.DefaultShoppingCategory
	}
	return models.ShoppingItem{
		ID:            uuid.NewString(),
		ListID:        listID,
		Name:          strings.TrimSpace(in.Name),
		EstimatedCost: cost,
		Quantity:      quantity,
		Category:      category,
		CreatedAt:     now,
	}, nil
}

// CreateShoppingList stores a list and its initial items for one credit.
func (s *ShoppingService) CreateShoppingList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateShoppingListRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	list, receipt, err := s.createList(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shopping_list": list, "credit_balance": receipt.Balance})
}

func (s *ShoppingService) createList(ctx context.Context, userID string, req CreateShoppingListRequest) (*models.ShoppingList, *ledger.Receipt, error) {
	req.ListName = strings.TrimSpace(req.ListName)
	if req.ListName == "" {
		return nil, nil, newValidationError("List name is required")
	}
	if err := s.validator.Struct(&req); err != nil {
		return nil, nil, err
	}

	budget, err := req.Budget.ValueOr(decimal.Zero)
	if err != nil {
		return nil, nil, newValidationError("Invalid budget format")
	}

	now := s.now().UTC()
	list := &models.ShoppingList{
		ID:        uuid.NewString(),
		UserID:    userID,
		ListName:  req.ListName,
		Budget:    budget,
		Items:     []models.ShoppingItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, in := range req.Items {
		// Offset timestamps so items keep their request order.
		item, err := s.newItem(list.ID, in, now.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			return nil, nil, err
		}
		list.Items = append(list.Items, item)
	}
	list.Recalculate()

	charge := ledger.DebitRequest{UserID: userID, Amount: ledger.CostAction, Action: "create_shopping_list", ItemID: &list.ID}
	receipt, err := s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shopping_lists (`+shoppingListColumns+`) VALUES ($1, $2, $3, $4, $5, $5)`,
			list.ID, list.UserID, list.ListName, list.Budget, list.CreatedAt); err != nil {
			return err
		}
		for _, item := range list.Items {
			if err := insertShoppingItem(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return list, receipt, nil
}

// AddShoppingItem appends an item to one of the caller's lists for one credit.
func (s *ShoppingService) AddShoppingItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req ShoppingItemInput
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	list, receipt, err := s.addItem(r.Context(), userID, chi.URLParam(r, "listId"), req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shopping_list": list, "credit_balance": receipt.Balance})
}

func (s *ShoppingService) addItem(ctx context.Context, userID, listID string, req ShoppingItemInput) (*models.ShoppingList, *ledger.Receipt, error) {
	req.Name = strings.TrimSpace(req.Name)
	if listID == "" || req.Name == "" || !req.EstimatedCost.Provided() || req.Quantity == nil {
		return nil, nil, newValidationError("List ID, name, estimated cost, and quantity are required")
	}
	if err := s.validator.Struct(&req); err != nil {
		return nil, nil, err
	}

	item, err := s.newItem(listID, req, s.now().UTC())
	if err != nil {
		return nil, nil, err
	}

	return s.mutateList(ctx, userID, listID, "add_shopping_item", func(tx *sql.Tx) error {
		return insertShoppingItem(ctx, tx, item)
	})
}

// ToggleShoppingItem flips an item's purchased flag for one credit.
func (s *ShoppingService) ToggleShoppingItem(w http.ResponseWriter, r *http.Request) {
	s.itemAction(w, r, "toggle_shopping_item",
		`UPDATE shopping_items SET is_purchased = NOT is_purchased WHERE id = $1 AND list_id = $2`)
}

// DeleteShoppingItem removes an item from a list for one credit.
func (s *ShoppingService) DeleteShoppingItem(w http.ResponseWriter, r *http.Request) {
	s.itemAction(w, r, "delete_shopping_item",
		`DELETE FROM shopping_items WHERE id = $1 AND list_id = $2`)
}

func (s *ShoppingService) itemAction(w http.ResponseWriter, r *http.Request, action, query string) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, receipt, err := s.changeItem(r.Context(), userID, chi.URLParam(r, "listId"), chi.URLParam(r, "itemId"), action, query)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "shopping_list": list, "credit_balance": receipt.Balance})
}

func (s *ShoppingService) changeItem(ctx context.Context, userID, listID, itemID, action, query string) (*models.ShoppingList, *ledger.Receipt, error) {
	if listID == "" || itemID == "" {
		return nil, nil, newValidationError("List ID and item ID are required")
	}
	return s.mutateList(ctx, userID, listID, action, func(tx *sql.Tx) error {
		return execOwned(ctx, tx, "Item", query, itemID, listID)
	})
}

// mutateList locks the caller's list, applies change, reloads the list and
// charges one credit against it.
func (s *ShoppingService) mutateList(ctx context.Context, userID, listID, action string, change func(tx *sql.Tx) error) (*models.ShoppingList, *ledger.Receipt, error) {
	var list *models.ShoppingList
	charge := ledger.DebitRequest{UserID: userID, Amount: ledger.CostAction, Action: action, ItemID: &listID}
	receipt, err := s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM shopping_lists WHERE id = $1 AND user_id = $2 FOR UPDATE`, listID, userID).Scan(&locked)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Shopping list")
		}
		if err != nil {
			return err
		}

		if err := change(tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE shopping_lists SET updated_at = $1 WHERE id = $2`, s.now().UTC(), listID); err != nil {
			return err
		}

		lists, err := loadShoppingLists(ctx, tx,
			`SELECT `+shoppingListColumns+` FROM shopping_lists WHERE id = $1`, listID)
		if err != nil {
			return err
		}
		if len(lists) == 0 {
			return notFound("Shopping list")
		}
		list = &lists[0]
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return list, receipt, nil
}

// DeleteShoppingList removes a list and its items for one credit.
func (s *ShoppingService) DeleteShoppingList(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	receipt, err := s.deleteList(r.Context(), userID, chi.URLParam(r, "listId"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Shopping list deleted successfully", "credit_balance": receipt.Balance})
}

func (s *ShoppingService) deleteList(ctx context.Context, userID, listID string) (*ledger.Receipt, error) {
	if listID == "" {
		return nil, newValidationError("List ID is required")
	}

	charge := ledger.DebitRequest{UserID: userID, Amount: ledger.CostAction, Action: "delete_shopping_list", ItemID: &listID}
	return s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		return execOwned(ctx, tx, "Shopping list", `DELETE FROM shopping_lists WHERE id = $1 AND user_id = $2`, listID, userID)
	})
}

// GetShoppingDashboard returns lists newest first with spending insights.
func (s *ShoppingService) GetShoppingDashboard(w http.ResponseWriter, r *http.Request) {
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

func (s *ShoppingService) dashboard(ctx context.Context, userID string, page, limit int) (*ShoppingDashboard, error) {
	lists, err := loadShoppingLists(ctx, s.db,
		`SELECT `+shoppingListColumns+` FROM shopping_lists WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shopping_lists WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, err
	}

	catRows, err := s.db.QueryContext(ctx,
		`SELECT i.category, SUM(i.estimated_cost * i.quantity)
		FROM shopping_items i JOIN shopping_lists l ON l.id = i.list_id
		WHERE l.user_id = $1
		GROUP BY i.category ORDER BY i.category`,
		userID)
	if err != nil {
		return nil, err
	}
	defer catRows.Close()

	categories := []models.ChartValue{}
	for catRows.Next() {
		var c models.ChartValue
		if err := catRows.Scan(&c.Label, &c.Value); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := catRows.Err(); err != nil {
		return nil, err
	}

	spent := decimal.Zero
	for i := range lists {
		spent = spent.Add(lists[i].SpentTotal())
	}

	dashboard := &ShoppingDashboard{
		ShoppingLists: lists,
		Categories:    categories,
		Summary:       ShoppingSummary{TotalLists: total, TotalSpent: spent.Round(2)},
		Insights:      []string{},
		Tips:          shoppingTips,
		Pagination:    models.NewPagination(page, limit, total),
	}

	if len(lists) > 0 {
		latest := lists[0]
		dashboard.LatestList = &latest
		if latest.TotalEstimatedCost.GreaterThan(latest.Budget) {
			dashboard.Insights = append(dashboard.Insights, "Your latest shopping list exceeds the budget. Consider removing non-essential items.")
		}
	}
	if len(categories) > 0 {
		top := categories[0]
		for _, c := range categories[1:] {
			if c.Value.GreaterThan(top.Value) {
				top = c
			}
		}
		dashboard.Insights = append(dashboard.Insights, fmt.Sprintf("Your highest spending category is %s.", top.Label))
	}
	return dashboard, nil
}

// ExportShoppingLists downloads one list (one credit) or the history (two credits).
func (s *ShoppingService) ExportShoppingLists(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	doc, err := s.export(r.Context(), userID, chi.URLParam(r, "exportType"), chi.URLParam(r, "listId"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeExport(w, "shopping", *doc)
}

func (s *ShoppingService) export(ctx context.Context, userID, exportType, listID string) (*ExportDocument, error) {
	charge, err := exportCharge(userID, "shopping", exportType, listID, "List ID")
	if err != nil {
		return nil, err
	}

	var lists []models.ShoppingList
	receipt, err := s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		var err error
		if exportType == exportSingle {
			lists, err = loadShoppingLists(ctx, tx,
				`SELECT `+shoppingListColumns+` FROM shopping_lists WHERE id = $1 AND user_id = $2`, listID, userID)
			if err == nil && len(lists) == 0 {
				return notFound("Shopping list")
			}
			return err
		}
		lists, err = loadShoppingLists(ctx, tx,
			`SELECT `+shoppingListColumns+` FROM shopping_lists WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
			userID, exportHistoryLimit)
		return err
	})
	if err != nil {
		return nil, err
	}

	doc := newExportDocument(exportType, s.now(), lists, len(lists), receipt)
	return &doc, nil
}

func insertShoppingItem(ctx context.Context, tx *sql.Tx, item models.ShoppingItem) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO shopping_items (`+shoppingItemColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.ListID, item.Name, item.EstimatedCost, item.Quantity, item.Category, item.IsPurchased, item.CreatedAt)
	return err
}

// loadShoppingLists runs a list query and attaches the items of every list.
func loadShoppingLists(ctx context.Context, q queryer, query string, args ...any) ([]models.ShoppingList, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []models.ShoppingList{}
	index := map[string]int{}
	for rows.Next() {
		var l models.ShoppingList
		if err := rows.Scan(&l.ID, &l.UserID, &l.ListName, &l.Budget, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.Items = []models.ShoppingItem{}
		index[l.ID] = len(lists)
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(lists) == 0 {
		return lists, nil
	}

	ids := make([]string, len(lists))
	for i, l := range lists {
		ids[i] = l.ID
	}

	itemRows, err := q.QueryContext(ctx,
		`SELECT `+shoppingItemColumns+` FROM shopping_items WHERE list_id = ANY($1) ORDER BY list_id, created_at`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item models.ShoppingItem
		if err := itemRows.Scan(&item.ID, &item.ListID, &item.Name, &item.EstimatedCost, &item.Quantity,
			&item.Category, &item.IsPurchased, &item.CreatedAt); err != nil {
			return nil, err
		}
		if i, ok := index[item.ListID]; ok {
			lists[i].Items = append(lists[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range lists {
		lists[i].Recalculate()
	}
	return lists, nil
}
