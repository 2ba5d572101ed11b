package cache

import (
	"context"
	"errors"

	"github.com/fjod/agrostore/internal/domain"
)

// CartCache stores cart lines only. Prices are never cached with a cart.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	// Version returns the invalidation counter of the user's cart. Read it
	// before loading the cart from the repository.
	Version(ctx context.Context, userID string) (int64, error)
	// Set stores the cart unless it was invalidated after version was read,
	// in which case ErrStale is returned.
	Set(ctx context.Context, userID string, cart *domain.Cart, version int64) error
	// Delete drops the cached cart and advances its version.
	Delete(ctx context.Context, userID string) error
}

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrStale     = errors.New("cart changed since it was loaded")
)
