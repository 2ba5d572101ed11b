package repository

import (
	"context"
	"errors"

	"github.com/fjod/agrostore/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrLineNotFound = errors.New("line not found in cart")
)

// CartRepository persists one cart document per user. A product appears in at
// most one line of a cart.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// IncrementLine adds delta to the line holding productID, or appends line
	// when the cart has no line for that product yet.
	IncrementLine(ctx context.Context, userID string, line domain.CartLine) error
	SetLineQuantity(ctx context.Context, userID, lineID string, quantity int) error
	RemoveLine(ctx context.Context, userID, lineID string) error
	DeleteCart(ctx context.Context, userID string) error
}
