package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/agrostore/internal/domain"
	"github.com/fjod/agrostore/internal/payment"
	"github.com/fjod/agrostore/internal/pricing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fjod/agrostore/internal/checkout")

type Result struct {
	OrderID     string       `json:"order_id"`
	SessionID   string       `json:"session_id"`
	RedirectURL string       `json:"redirect_url"`
	Total       domain.Money `json:"total"`
}

type Service struct {
	carts    Carts
	resolver Resolver
	orders   Orders
	payments Payments
	log      *zap.Logger
}

func NewService(carts Carts, resolver Resolver, orders Orders, payments Payments, log *zap.Logger) *Service {
	return &Service{
		carts:    carts,
		resolver: resolver,
		orders:   orders,
		payments: payments,
		log:      log,
	}
}

// Checkout turns the user's cart into a pending order and opens a payment
// session for it. When the payment processor fails the order stays pending and
// the returned GatewayError carries its id so payment can be retried.
func (s *Service) Checkout(ctx context.Context, user *domain.User, returnBase string) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "checkout")
	defer func() { endSpan(span, err) }()

	if user == nil || user.ID == "" {
		return nil, domain.ErrAuthRequired
	}
	span.SetAttributes(attribute.String("user_id", user.ID))

	cart, err := s.carts.ForUser(user)
	if err != nil {
		return nil, err
	}
	cartLines, err := cart.Lines(ctx)
	if err != nil {
		return nil, err
	}
	if len(cartLines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	lines, err := s.resolver.Resolve(ctx, cartLines)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.CreateOrder(ctx, user.ID, lines)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order_id", order.ID))

	return s.openSession(ctx, user, order, lines, returnBase)
}

// RetryPayment opens a new payment session for an order still awaiting
// payment, priced from the order's own items.
func (s *Service) RetryPayment(ctx context.Context, user *domain.User, orderID, returnBase string) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "checkout.retry_payment", withOrder(orderID))
	defer func() { endSpan(span, err) }()

	order, err := s.orders.GetOrderForUser(ctx, user, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending {
		return nil, &domain.IllegalTransitionError{OrderID: order.ID, From: order.Status, To: domain.OrderStatusProcessing}
	}
	return s.openSession(ctx, user, order, pricing.FromOrderItems(order.Items), returnBase)
}

func (s *Service) openSession(ctx context.Context, user *domain.User, order *domain.Order, lines []pricing.Line, returnBase string) (*Result, error) {
	session, err := s.payments.CreateSession(ctx, user, order, lines, payment.ReturnURLsFor(returnBase))
	if err != nil {
		s.log.Warn("payment session failed, order left pending",
			zap.String("order_id", order.ID), zap.Error(err))
		var gerr *domain.GatewayError
		if errors.As(err, &gerr) {
			if gerr.OrderID == "" {
				gerr.OrderID = order.ID
			}
			return nil, gerr
		}
		return nil, fmt.Errorf("open payment session for order %s: %w", order.ID, err)
	}

	// failure events are matched against the recorded session
	if err := s.orders.SetPaymentSession(ctx, order.ID, session.ID); err != nil {
		s.log.Error("failed to record payment session, order left pending",
			zap.String("order_id", order.ID), zap.String("session_id", session.ID), zap.Error(err))
		return nil, err
	}

	return &Result{
		OrderID:     order.ID,
		SessionID:   session.ID,
		RedirectURL: session.URL,
		Total:       order.TotalAmount,
	}, nil
}
