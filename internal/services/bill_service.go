package services

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ficore/backend/internal/ledger"
	"github.com/ficore/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const billColumns = "id, user_id, name, amount, due_date, frequency, category, status, reminder_days, notes, created_at, updated_at"

var billTips = []string{
	"Set reminders for due dates.",
	"Pay high-priority bills first.",
	"Review recurring bills for savings.",
}

type BillService struct {
	db        *sql.DB
	meter     *Meter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

type CreateBillRequest struct {
	Name         string        `json:"name" validate:"required,max=50"`
	Amount       CurrencyInput `json:"amount"`
	DueDate      string        `json:"due_date" validate:"required"`
	Frequency    string        `json:"frequency" validate:"required,oneof=one-time weekly monthly quarterly"`
	Category     string        `json:"category" validate:"required,oneof=Utilities Rent Food Transport Insurance Healthcare Education Entertainment Miscellaneous"`
	ReminderDays *int          `json:"reminder_days" validate:"required,gte=0,lte=30"`
	Notes        string        `json:"notes" validate:"max=500"`
}

type UpdateBillStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending paid overdue"`
}

type BillSummary struct {
	TotalBills int `json:"total_bills"`
	Pending    int `json:"pending"`
	Paid       int `json:"paid"`
	Overdue    int `json:"overdue"`
}

type BillDashboard struct {
	Bills      []models.Bill       `json:"bills"`
	Summary    BillSummary         `json:"summary"`
	Categories []models.ChartValue `json:"categories"`
	Insights   []string            `json:"insights"`
	Tips       []string            `json:"tips"`
	Pagination models.Pagination   `json:"pagination"`
}

func NewBillService(db *sql.DB, debiter ledger.Debiter, logger *zap.Logger) *BillService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillService{
		db:        db,
		meter:     NewMeter(db, debiter, logger),
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
}

// CreateBill records a new pending bill for one credit.
func (s *BillService) CreateBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateBillRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	bill, receipt, err := s.createBill(r.Context(), userID, req)
	if err != nil {
		s.logger.Info("Create bill failed", zap.String("user_id", userID), zap.Error(err))
		writeServiceError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bill": bill, "credit_balance": receipt.Balance})
}

func (s *BillService) createBill(ctx context.Context, userID string, req CreateBillRequest) (*models.Bill, *ledger.Receipt, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Notes = strings.TrimSpace(req.Notes)
	if err := s.validator.Struct(&req); err != nil {
		return nil, nil, err
	}

	amount, err := currencyField("amount", req.Amount)
	if err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	dueDate, err := parseDueDate(req.DueDate, now)
	if err != nil {
		return nil, nil, err
	}

	bill := &models.Bill{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         req.Name,
		Amount:       amount,
		DueDate:      dueDate,
		Frequency:    req.Frequency,
		Category:     req.Category,
		Status:       models.BillStatusPending,
		ReminderDays: *req.ReminderDays,
		Notes:        req.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	charge := ledger.DebitRequest{UserID: userID, Amount: ledger.CostAction, Action: "create_bill", ItemID: &bill.ID}
	receipt, err := s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bills (`+billColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
			bill.ID, bill.UserID, bill.Name, bill.Amount, bill.DueDate, bill.Frequency,
			bill.Category, bill.Status, bill.ReminderDays, bill.Notes, bill.CreatedAt)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return bill, receipt, nil
}

// parseDueDate accepts YYYY-MM-DD or RFC 3339 and rejects days before today.
func parseDueDate(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	due, err := time.Parse("2006-01-02", raw)
	if err != nil {
		ts, tsErr := time.Parse(time.RFC3339, raw)
		if tsErr != nil {
			return time.Time{}, newValidationError("Invalid due_date format")
		}
		due = ts.UTC()
	}
	due = time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if due.Before(today) {
		return time.Time{}, newValidationError("Due date cannot be in the past")
	}
	return due, nil
}

// GetBillDashboard lists bills by due date with status and category totals.
func (s *BillService) GetBillDashboard(w http.ResponseWriter, r *http.Request) {
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

func (s *BillService) dashboard(ctx context.Context, userID string, page, limit int) (*BillDashboard, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+billColumns+` FROM bills WHERE user_id = $1 ORDER BY due_date ASC, created_at ASC LIMIT $2 OFFSET $3`,
		userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	bills, err := collectBills(rows)
	if err != nil {
		return nil, err
	}

	var summary BillSummary
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'paid'),
			COUNT(*) FILTER (WHERE status = 'overdue')
		FROM bills WHERE user_id = $1`,
		userID).Scan(&summary.TotalBills, &summary.Pending, &summary.Paid, &summary.Overdue)
	if err != nil {
		return nil, err
	}

	catRows, err := s.db.QueryContext(ctx,
		`SELECT category, SUM(amount) FROM bills WHERE user_id = $1 GROUP BY category ORDER BY category`,
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

	insights := []string{}
	if summary.Overdue > 0 {
		insights = append(insights, "You have overdue bills. Consider addressing them promptly.")
	}
	if summary.Pending > summary.Paid {
		insights = append(insights, "Most of your bills are pending. Schedule payments to avoid late fees.")
	}

	return &BillDashboard{
		Bills:      bills,
		Summary:    summary,
		Categories: categories,
		Insights:   insights,
		Tips:       billTips,
		Pagination: models.NewPagination(page, limit, summary.TotalBills),
	}, nil
}

// UpdateBillStatus sets a bill to pending, paid or overdue for one credit.
func (s *BillService) UpdateBillStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req UpdateBillStatusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeServiceError(w, s.logger, err)
		return
	}

	bill, receipt, err := s.updateStatus(r.Context(), userID, chi.URLParam(r, "billId"), req)
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bill": bill, "credit_balance": receipt.Balance})
}

func (s *BillService) updateStatus(ctx context.Context, userID, billID string, req UpdateBillStatusRequest) (*models.Bill, *ledger.Receipt, error) {
	if billID == "" {
		return nil, nil, newValidationError("Bill ID is required")
	}
	if err := s.validator.Struct(&req); err != nil {
		return nil, nil, newValidationError("Invalid bill status")
	}

	var bill *models.Bill
	charge := ledger.DebitRequest{UserID: userID, Amount: ledger.CostAction, Action: "toggle_bill_status", ItemID: &billID}
	receipt, err := s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`UPDATE bills SET status = $1, updated_at = $2 WHERE id = $3 AND user_id = $4 RETURNING `+billColumns,
			req.Status, s.now().UTC(), billID, userID)
		var err error
		bill, err = scanBill(row)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("Bill")
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return bill, receipt, nil
}

// DeleteBill removes a bill for one credit.
func (s *BillService) DeleteBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	receipt, err := s.deleteBill(r.Context(), userID, chi.URLParam(r, "billId"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Bill deleted successfully", "credit_balance": receipt.Balance})
}

func (s *BillService) deleteBill(ctx context.Context, userID, billID string) (*ledger.Receipt, error) {
	if billID == "" {
		return nil, newValidationError("Bill ID is required")
	}

	charge := ledger.DebitRequest{UserID: userID, Amount: ledger.CostAction, Action: "delete_bill", ItemID: &billID}
	return s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		return execOwned(ctx, tx, "Bill", `DELETE FROM bills WHERE id = $1 AND user_id = $2`, billID, userID)
	})
}

// ExportBills downloads one bill (one credit) or the bill history (two credits).
func (s *BillService) ExportBills(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	doc, err := s.export(r.Context(), userID, chi.URLParam(r, "exportType"), chi.URLParam(r, "billId"))
	if err != nil {
		writeServiceError(w, s.logger, err)
		return
	}
	writeExport(w, "bill", *doc)
}

func (s *BillService) export(ctx context.Context, userID, exportType, billID string) (*ExportDocument, error) {
	charge, err := exportCharge(userID, "bill", exportType, billID, "Bill ID")
	if err != nil {
		return nil, err
	}

	var bills []models.Bill
	receipt, err := s.meter.Run(ctx, charge, func(tx *sql.Tx) error {
		if exportType == exportSingle {
			bill, err := scanBill(tx.QueryRowContext(ctx,
				`SELECT `+billColumns+` FROM bills WHERE id = $1 AND user_id = $2`, billID, userID))
			if errors.Is(err, sql.ErrNoRows) {
				return notFound("Bill")
			}
			if err != nil {
				return err
			}
			bills = []models.Bill{*bill}
			return nil
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+billColumns+` FROM bills WHERE user_id = $1 ORDER BY due_date ASC LIMIT $2`,
			userID, exportHistoryLimit)
		if err != nil {
			return err
		}
		bills, err = collectBills(rows)
		return err
	})
	if err != nil {
		return nil, err
	}

	doc := newExportDocument(exportType, s.now(), bills, len(bills), receipt)
	return &doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBill(row rowScanner) (*models.Bill, error) {
	var b models.Bill
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Amount, &b.DueDate, &b.Frequency,
		&b.Category, &b.Status, &b.ReminderDays, &b.Notes, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBills(rows *sql.Rows) ([]models.Bill, error) {
	defer rows.Close()

	bills := []models.Bill{}
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, *bill)
	}
	return bills, rows.Err()
}

// execOwned runs a statement scoped to the caller and reports a missing
// record when it touches no rows.
func execOwned(ctx context.Context, tx *sql.Tx, resource, query string, args ...any) error {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound(resource)
	}
	return nil
}
