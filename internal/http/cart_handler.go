package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	cartservice "github.com/fjod/agrostore/internal/cart/service"
	"github.com/fjod/agrostore/internal/domain"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartStore interface {
	AddItem(ctx context.Context, productID string, quantity int) error
	SetQuantity(ctx context.Context, lineID string, quantity int) error
	RemoveItem(ctx context.Context, lineID string) error
	Clear(ctx context.Context) error
	View(ctx context.Context) (*cartservice.CartView, error)
}

// CartOpener returns the cart of a signed-in user.
type CartOpener func(user *domain.User) (CartStore, error)

// CartsFrom adapts the cart service to a CartOpener.
func CartsFrom(svc *cartservice.CartService) CartOpener {
	return func(user *domain.User) (CartStore, error) {
		store, err := svc.ForUser(user)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

type CartHandler struct {
	carts   CartOpener
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(carts CartOpener, timeout time.Duration, log *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusCreated, func(ctx context.Context, cart CartStore) error {
		var req AddItemRequestDTO
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		return cart.AddItem(ctx, req.ProductID, req.Quantity)
	})
}

// PUT /api/v1/cart/items/{line_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "line_id")
	h.mutate(w, r, http.StatusOK, func(ctx context.Context, cart CartStore) error {
		var req UpdateQuantityRequestDTO
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		return withLine(lineID, cart.SetQuantity(ctx, lineID, req.Quantity))
	})
}

// DELETE /api/v1/cart/items/{line_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	lineID := chi.URLParam(r, "line_id")
	h.mutate(w, r, http.StatusOK, func(ctx context.Context, cart CartStore) error {
		return withLine(lineID, cart.RemoveItem(ctx, lineID))
	})
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusOK, func(ctx context.Context, cart CartStore) error {
		return cart.Clear(ctx)
	})
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusOK, func(context.Context, CartStore) error { return nil })
}

// mutate runs op against the caller's cart and answers with the cart as it
// stands afterwards.
func (h *CartHandler) mutate(w http.ResponseWriter, r *http.Request, status int, op func(context.Context, CartStore) error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts(currentUser(r))
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	if err := op(ctx, cart); err != nil {
		var le *lineError
		if errors.As(err, &le) {
			h.respondLineError(w, r, le)
			return
		}
		respondDomainError(w, r, h.log, err)
		return
	}

	view, err := cart.View(ctx)
	if err != nil {
		respondDomainError(w, r, h.log, err)
		return
	}
	respondJSON(w, status, view)
}

// lineError tags an error with the cart line it concerns.
type lineError struct {
	lineID string
	err    error
}

func (e *lineError) Error() string { return e.err.Error() }
func (e *lineError) Unwrap() error { return e.err }

func withLine(lineID string, err error) error {
	if err == nil {
		return nil
	}
	return &lineError{lineID: lineID, err: err}
}

func (h *CartHandler) respondLineError(w http.ResponseWriter, r *http.Request, le *lineError) {
	status, resp := errorResponse(r, h.log, le.err)
	resp.LineID = le.lineID
	respondJSON(w, status, resp)
}
