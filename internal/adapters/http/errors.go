package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"loyalty-points-system/internal/core/domain"
)

// ErrorResponse is a standard structure for returning errors in JSON format.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSONError is a helper for sending errors in JSON format.
func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{Error: message}, nil)
}

func writeJSON(w http.ResponseWriter, code int, body any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil && logger != nil {
		logger.Error("failed to write json response", "error", err)
	}
}

// statusFor maps a ledger error to the HTTP status and the message shown to the caller.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrAlreadyProcessed),
		errors.Is(err, domain.ErrPromotionAlreadyUsed),
		errors.Is(err, domain.ErrDuplicatePromotion):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrInsufficientPoints),
		errors.Is(err, domain.ErrInsufficientPool),
		errors.Is(err, domain.ErrPromotionExpired),
		errors.Is(err, domain.ErrPromotionNotApplicable),
		errors.Is(err, domain.ErrWrongTransactionType):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, domain.ErrBrokerUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
