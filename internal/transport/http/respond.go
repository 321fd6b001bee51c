package http

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pcshop/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	ItemID  string `json:"item_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит доменные ошибки в HTTP-статусы. Незнакомые
// ошибки логируются и отдаются как 500 без текста: внутренности
// ошибок хранилища клиенту не показываются.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "insufficient_stock",
			Details: insufficient.Error(),
			ItemID:  insufficient.ItemID,
		})
		return
	}

	// Недопустимый переход состояния — ошибка запроса, не конфликт
	// версий: клиент прислал действие, неприменимое к текущему статусу.
	var illegal *domain.IllegalTransitionError
	if errors.As(err, &illegal) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "illegal_transition",
			Details: illegal.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrStockItemNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrConfigurationNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found", Details: err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, domain.ErrStatusConflict):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "status_conflict", Details: err.Error()})
	case errors.Is(err, domain.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conflict", Details: err.Error()})
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_failed", Details: err.Error()})
	default:
		logger.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		domain.ErrStockItemIDRequired,
		domain.ErrStockItemKindInvalid,
		domain.ErrStockNegative,
		domain.ErrPaymentMethodRequired,
		domain.ErrItemsRequired,
		domain.ErrAmountNegative,
		domain.ErrItemQtyInvalid,
		domain.ErrItemPriceInvalid,
		domain.ErrProductKindInvalid,
		domain.ErrAmountMismatch,
		domain.ErrOwnerRequired,
		domain.ErrRejectReasonRequired,
		domain.ErrEventIDRequired,
		domain.ErrEventTypeRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
