package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/agrostore/internal/cart/cache"
	"github.com/fjod/agrostore/internal/cart/repository"
	"github.com/fjod/agrostore/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProductReader is the part of the catalog the cart needs.
type ProductReader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type CartService struct {
	repo     repository.CartRepository
	cache    cache.CartCache
	products ProductReader
	log      *zap.Logger
	sfg      singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, products ProductReader, log *zap.Logger) *CartService {
	return &CartService{
		repo:     repo,
		cache:    cache,
		products: products,
		log:      log,
	}
}

// ForUser returns a cart store bound to the signed-in user.
func (s *CartService) ForUser(user *domain.User) (*CartStore, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrAuthRequired
	}
	return &CartStore{svc: s, userID: user.ID}, nil
}

func (s *CartService) getCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn("cart cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		// read before the load so an invalidation racing with it wins
		version, verErr := s.cache.Version(ctx, userID)
		if verErr != nil {
			s.log.Warn("cart cache version failed", zap.String("user_id", userID), zap.Error(verErr))
		}

		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, repository.ErrCartNotFound) {
			now := time.Now()
			return &domain.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, &domain.PersistenceError{Op: "load cart", Err: err}
		}
		if verErr != nil {
			return cart, nil
		}

		setCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		switch errSet := s.cache.Set(setCtx, userID, cart, version); {
		case errors.Is(errSet, cache.ErrStale):
			s.log.Debug("cart changed while loading, not cached", zap.String("user_id", userID))
		case errSet != nil:
			s.log.Warn("cart cache set failed", zap.String("user_id", userID), zap.Error(errSet))
		}
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// ClearCart removes every line of the user's cart. A missing cart is not an
// error.
func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	err := s.repo.DeleteCart(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return &domain.PersistenceError{Op: "clear cart", Err: err}
	}
	s.invalidateCache(userID)
	return nil
}

func (s *CartService) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cart cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// checkStock is a soft check: stock is not reserved and is re-checked at
// checkout.
func (s *CartService) checkStock(ctx context.Context, productID string, quantity int) (*domain.Product, error) {
	p, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.ProductUnavailableError{ProductID: productID}
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", productID, err)
	}
	if !p.Available() {
		return nil, &domain.ProductUnavailableError{ProductID: productID}
	}
	if quantity > p.Stock {
		return nil, &domain.OutOfStockError{ProductID: productID, Requested: quantity, Available: p.Stock}
	}
	return p, nil
}

func newLineID() string {
	return uuid.NewString()
}
