package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/agrostore/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultAdminListLimit = 50
	maxAdminListLimit     = 500
)

type OrdersService interface {
	ListOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error)
	GetOrderForUser(ctx context.Context, user *domain.User, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error)
	Transition(ctx context.Context, orderID string, to domain.OrderStatus) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrdersService
	timeout time.Duration
	log     *zap.Logger
}

func NewOrdersHandler(orders OrdersService, timeout time.Duration, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
		log:     log,
	}
}

type OrderItemDTO struct {
	ProductID   string       `json:"product_id"`
	ProductName string       `json:"product_name"`
	Quantity    int          `json:"quantity"`
	Price       domain.Money `json:"price"`
}

type OrderResponseDTO struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	TotalAmount     domain.Money   `json:"total_amount"`
	Currency        string         `json:"currency"`
	Status          string         `json:"status"`
	ShippingAddress string         `json:"shipping_address"`
	ShippingCity    string         `json:"shipping_city"`
	Phone           string         `json:"phone"`
	Items           []OrderItemDTO `json:"items"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user := currentUser(r)
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orders, err := h.orders.ListOrdersByUser(ctx, user.ID)
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponses(orders))
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.GetOrderForUser(ctx, currentUser(r), chi.URLParam(r, "order_id"))
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

// GET /api/v1/admin/orders?status=&limit=
func (h *OrdersHandler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var status domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, err := domain.ParseOrderStatus(s)
		if err != nil {
			respondDomainError(w, r, h.log, err)
			return
		}
		status = parsed
	}

	limit := defaultAdminListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxAdminListLimit {
			respondError(w, http.StatusBadRequest, "invalid_argument", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	orders, err := h.orders.ListOrders(ctx, status, limit)
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponses(orders))
}

// PATCH /api/v1/admin/orders/{order_id}/status
func (h *OrdersHandler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateStatusRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	to, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}

	order, err := h.orders.Transition(ctx, chi.URLParam(r, "order_id"), to)
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(order))
}

func toOrderResponses(orders []*domain.Order) []OrderResponseDTO {
	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, toOrderResponse(o))
	}
	return dtos
}

func toOrderResponse(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
		})
	}
	return OrderResponseDTO{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		Status:          o.Status.String(),
		ShippingAddress: o.ShippingAddress,
		ShippingCity:    o.ShippingCity,
		Phone:           o.Phone,
		Items:           items,
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
