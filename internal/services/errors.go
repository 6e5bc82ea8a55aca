package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ficore/backend/internal/ledger"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
)

// ValidationError is a caller mistake reported back verbatim with 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string        { return e.Message }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func newValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the record that does not exist for the caller.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string        { return e.Resource + " not found" }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// writeServiceError maps domain and ledger errors onto HTTP responses.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var fieldErrs validator.ValidationErrors
	var validationErr *ValidationError
	var notFoundErr *NotFoundError

	switch {
	case errors.As(err, &fieldErrs):
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
	case errors.As(err, &validationErr):
		SendErrorResponse(w, validationErr.Message, http.StatusBadRequest, nil)
	case errors.As(err, &notFoundErr):
		SendErrorResponse(w, notFoundErr.Error(), http.StatusNotFound, nil)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		SendErrorResponse(w, "Insufficient credits", http.StatusPaymentRequired, nil)
	case errors.Is(err, ledger.ErrWriteConflict):
		SendErrorResponse(w, "Credit balance changed, please retry", http.StatusConflict, nil)
	case errors.Is(err, ledger.ErrAccountNotFound):
		SendErrorResponse(w, "Credit account not found", http.StatusNotFound, nil)
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidRequest):
		logger.Error("Rejected debit request", zap.Error(err))
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
	default:
		logger.Error("Request failed", zap.Error(err))
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
	}
}
