package services

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ficore/backend/internal/ledger"
)

const (
	exportSingle  = "single"
	exportHistory = "history"

	exportHistoryLimit = 100
)

// ExportDocument is the downloadable body of every export endpoint.
type ExportDocument struct {
	ExportType    string    `json:"export_type"`
	GeneratedAt   time.Time `json:"generated_at"`
	Count         int       `json:"count"`
	Records       any       `json:"records"`
	CreditBalance int64     `json:"credit_balance"`
}

// exportCharge validates the export type and prices it. idLabel names the
// record ID in the error returned when a single export has none.
func exportCharge(userID, feature, exportType, recordID, idLabel string) (ledger.DebitRequest, error) {
	req := ledger.DebitRequest{UserID: userID, Action: fmt.Sprintf("export_%s_%s", feature, exportType)}
	switch exportType {
	case exportSingle:
		if recordID == "" {
			return req, newValidationError("%s required", idLabel)
		}
		req.Amount = ledger.CostAction
		req.ItemID = &recordID
	case exportHistory:
		req.Amount = ledger.CostBulk
	default:
		return req, newValidationError("Invalid export type")
	}
	return req, nil
}

func writeExport(w http.ResponseWriter, feature string, doc ExportDocument) {
	filename := fmt.Sprintf("%s_%s_%s.json", feature, doc.ExportType, doc.GeneratedAt.Format("2006-01-02"))
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	writeJSON(w, http.StatusOK, doc)
}

func newExportDocument(exportType string, now time.Time, records any, count int, receipt *ledger.Receipt) ExportDocument {
	return ExportDocument{
		ExportType:    exportType,
		GeneratedAt:   now.UTC(),
		Count:         count,
		Records:       records,
		CreditBalance: receipt.Balance,
	}
}
