package http

import (
	"context"
	"net/http"
	"time"

	cartservice "github.com/fjod/agrostore/internal/cart/service"
	"github.com/fjod/agrostore/internal/checkout"
	"github.com/fjod/agrostore/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CheckoutService interface {
	Checkout(ctx context.Context, user *domain.User, returnBase string) (*checkout.Result, error)
	RetryPayment(ctx context.Context, user *domain.User, orderID, returnBase string) (*checkout.Result, error)
}

type PaymentReturns interface {
	HandleSuccessReturn(ctx context.Context, user *domain.User, sessionID string) (*checkout.SuccessResult, error)
	HandleCancelReturn(ctx context.Context, user *domain.User) (*cartservice.CartView, error)
}

type CheckoutHandler struct {
	checkout   CheckoutService
	returns    PaymentReturns
	returnBase string
	timeout    time.Duration
	log        *zap.Logger
}

func NewCheckoutHandler(svc CheckoutService, returns PaymentReturns, returnBase string, timeout time.Duration, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		checkout:   svc,
		returns:    returns,
		returnBase: returnBase,
		timeout:    timeout,
		log:        log,
	}
}

type CheckoutResponseDTO struct {
	OrderID     string       `json:"order_id"`
	SessionID   string       `json:"session_id"`
	RedirectURL string       `json:"redirect_url"`
	Total       domain.Money `json:"total"`
}

type PaymentSuccessDTO struct {
	Verified    bool              `json:"verified"`
	CartCleared bool              `json:"cart_cleared"`
	Order       *OrderResponseDTO `json:"order,omitempty"`
}

type PaymentCancelDTO struct {
	Message string                `json:"message"`
	Cart    *cartservice.CartView `json:"cart"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.checkout.Checkout(ctx, currentUser(r), h.returnBase)
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCheckoutResponse(res))
}

// POST /api/v1/orders/{order_id}/payment
func (h *CheckoutHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := currentUser(r)
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}
	res, err := h.checkout.RetryPayment(ctx, user, chi.URLParam(r, "order_id"), h.returnBase)
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCheckoutResponse(res))
}

// GET /api/v1/payments/success?session_id=
func (h *CheckoutHandler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.returns.HandleSuccessReturn(ctx, currentUser(r), r.URL.Query().Get("session_id"))
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	dto := PaymentSuccessDTO{Verified: res.Verified, CartCleared: res.CartCleared}
	if res.Order != nil {
		o := toOrderResponse(res.Order)
		dto.Order = &o
	}
	respondJSON(w, http.StatusOK, dto)
}

// GET /api/v1/payments/cancel
func (h *CheckoutHandler) PaymentCancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	view, err := h.returns.HandleCancelReturn(ctx, currentUser(r))
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, PaymentCancelDTO{
		Message: "payment cancelled, your cart has been kept",
		Cart:    view,
	})
}

func toCheckoutResponse(res *checkout.Result) CheckoutResponseDTO {
	return CheckoutResponseDTO{
		OrderID:     res.OrderID,
		SessionID:   res.SessionID,
		RedirectURL: res.RedirectURL,
		Total:       res.Total,
	}
}
