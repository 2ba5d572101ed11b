package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/agrostore/internal/domain"
	"github.com/fjod/agrostore/internal/logger"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	LineID    string `json:"line_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondDomainError maps service errors to HTTP statuses. Internal failures
// are logged and answered without details.
func respondDomainError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status, resp := errorResponse(r, log, err)
	respondJSON(w, status, resp)
}

func errorResponse(r *http.Request, log *zap.Logger, err error) (int, ErrorResponse) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var (
		oos         *domain.OutOfStockError
		unavailable *domain.ProductUnavailableError
		gerr        *domain.GatewayError
		verr        *domain.ValidationError
		illegal     *domain.IllegalTransitionError
	)
	switch {
	case errors.As(err, &oos):
		resp.ProductID = oos.ProductID
	case errors.As(err, &unavailable):
		resp.ProductID = unavailable.ProductID
	case errors.As(err, &gerr):
		resp.Error = "payment provider unavailable, please retry"
		resp.OrderID = gerr.OrderID
	case errors.As(err, &verr):
		resp.Details = verr.Field
	case errors.As(err, &illegal):
		resp.OrderID = illegal.OrderID
	}

	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), log).Error("request failed", zap.Int("status", status), zap.Error(err))
		if status == http.StatusInternalServerError {
			resp.Error = "internal server error"
		}
	}
	return status, resp
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrOutOfStock):
		return http.StatusConflict, "out_of_stock"
	case errors.Is(err, domain.ErrProductUnavailable):
		return http.StatusConflict, "product_unavailable"
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusConflict, "empty_cart"
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway, "payment_gateway_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "invalid JSON body"}
	}
	return nil
}
