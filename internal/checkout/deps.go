package checkout

import (
	"context"

	cartservice "github.com/fjod/agrostore/internal/cart/service"
	"github.com/fjod/agrostore/internal/domain"
	"github.com/fjod/agrostore/internal/payment"
	"github.com/fjod/agrostore/internal/pricing"
)

type CartStore interface {
	Lines(ctx context.Context) ([]domain.CartLine, error)
	View(ctx context.Context) (*cartservice.CartView, error)
	Clear(ctx context.Context) error
}

type Carts interface {
	ForUser(user *domain.User) (CartStore, error)
}

type Resolver interface {
	Resolve(ctx context.Context, lines []domain.CartLine) ([]pricing.Line, error)
}

type Orders interface {
	CreateOrder(ctx context.Context, userID string, lines []pricing.Line) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrderForUser(ctx context.Context, user *domain.User, orderID string) (*domain.Order, error)
	SetPaymentSession(ctx context.Context, orderID, sessionID string) error
	MarkPaid(ctx context.Context, orderID string) (bool, error)
	CancelPending(ctx context.Context, orderID, sessionID string) (bool, error)
}

type Payments interface {
	CreateSession(ctx context.Context, caller *domain.User, order *domain.Order, lines []pricing.Line, urls payment.ReturnURLs) (*payment.Session, error)
	LookupSession(ctx context.Context, sessionID string) (*payment.Session, error)
}

// CartsFromService adapts the cart service to Carts.
func CartsFromService(s *cartservice.CartService) Carts {
	return cartServiceAdapter{s}
}

type cartServiceAdapter struct {
	s *cartservice.CartService
}

func (a cartServiceAdapter) ForUser(user *domain.User) (CartStore, error) {
	store, err := a.s.ForUser(user)
	if err != nil {
		return nil, err
	}
	return store, nil
}
