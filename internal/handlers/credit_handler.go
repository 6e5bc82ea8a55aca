package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ficore/backend/internal/ledger"
	"github.com/ficore/backend/internal/middleware"
	"github.com/ficore/backend/internal/models"
	"github.com/ficore/backend/internal/services"
	"go.uber.org/zap"
)

// CreditHandler serves the read-only view of a user's credits.
type CreditHandler struct {
	reader ledger.AuditReader
	logger *zap.Logger
}

type BalanceResponse struct {
	CreditBalance int64 `json:"credit_balance"`
}

type TransactionsResponse struct {
	Transactions []models.CreditTransaction `json:"transactions"`
	Pagination   models.Pagination          `json:"pagination"`
}

func NewCreditHandler(reader ledger.AuditReader, logger *zap.Logger) *CreditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditHandler{reader: reader, logger: logger}
}

// Balance returns the caller's current credit balance.
func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := h.reader.Balance(r.Context(), userID)
	if err != nil {
		h.writeLedgerError(w, userID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BalanceResponse{CreditBalance: balance})
}

// Transactions pages through the caller's credit log, newest first.
// Failed attempts are listed alongside completed debits.
func (h *CreditHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	page, limit := services.ParsePagination(r)

	entries, err := h.reader.ListEntries(r.Context(), userID, limit, (page-1)*limit)
	if err != nil {
		h.writeLedgerError(w, userID, err)
		return
	}
	total, err := h.reader.CountEntries(r.Context(), userID)
	if err != nil {
		h.writeLedgerError(w, userID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TransactionsResponse{
		Transactions: entries,
		Pagination:   models.NewPagination(page, limit, total),
	})
}

func (h *CreditHandler) writeLedgerError(w http.ResponseWriter, userID string, err error) {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		services.SendErrorResponse(w, "Credit account not found", http.StatusNotFound, nil)
		return
	}
	h.logger.Error("Credit lookup failed", zap.String("user_id", userID), zap.Error(err))
	services.SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
}
