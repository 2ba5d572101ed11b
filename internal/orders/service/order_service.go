package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/agrostore/internal/domain"
	r "github.com/fjod/agrostore/internal/orders/repository"
	"github.com/fjod/agrostore/internal/pricing"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderService struct {
	repo     r.OrderRepository
	currency string
	log      *zap.Logger
	now      func() time.Time
}

func NewOrderService(repo r.OrderRepository, currency string, log *zap.Logger) *OrderService {
	return &OrderService{
		repo:     repo,
		currency: currency,
		log:      log,
		now:      time.Now,
	}
}

// CreateOrder persists a pending order whose items are the resolved lines and
// whose total is the sum of their line totals.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, lines []pricing.Line) (*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrAuthRequired
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	order := &domain.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		TotalAmount:     pricing.Total(lines),
		Currency:        s.currency,
		Status:          domain.OrderStatusPending,
		ShippingAddress: domain.ShippingPlaceholder,
		ShippingCity:    domain.ShippingPlaceholder,
		Phone:           domain.ShippingPlaceholder,
		Items:           make([]domain.OrderItem, 0, len(lines)),
	}
	for _, l := range lines {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       l.UnitPrice,
		})
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, &domain.PersistenceError{Op: "create order", Err: err}
	}
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Stringer("total", order.TotalAmount),
		zap.Int("items", len(order.Items)))
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, orderID)
	if errors.Is(err, r.ErrOrderNotFound) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load order", Err: err}
	}
	return order, nil
}

// GetOrderForUser hides orders of other users behind NotFound. Admins may read
// any order.
func (s *OrderService) GetOrderForUser(ctx context.Context, user *domain.User, orderID string) (*domain.Order, error) {
	if user == nil {
		return nil, domain.ErrAuthRequired
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != user.ID && !user.IsAdmin() {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}

func (s *OrderService) ListOrdersByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	orders, err := s.repo.ListOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

func (s *OrderService) ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error) {
	orders, err := s.repo.ListOrders(ctx, status, limit)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list orders", Err: err}
	}
	return orders, nil
}

func (s *OrderService) SetPaymentSession(ctx context.Context, orderID, sessionID string) error {
	err := s.repo.SetPaymentSession(ctx, orderID, sessionID)
	if errors.Is(err, r.ErrOrderNotFound) {
		return fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return &domain.PersistenceError{Op: "record payment session", Err: err}
	}
	return nil
}

// Transition applies an operator status change. Only the moves allowed by the
// order state machine are accepted.
func (s *OrderService) Transition(ctx context.Context, orderID string, to domain.OrderStatus) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionTo(order.Status, to) {
		return nil, &domain.IllegalTransitionError{OrderID: orderID, From: order.Status, To: to}
	}

	changed, err := s.repo.TransitionStatus(ctx, orderID, order.Status, to, nil)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "update order status", Err: err}
	}
	if !changed {
		// someone else moved the order first
		current, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		return nil, &domain.IllegalTransitionError{OrderID: orderID, From: current.Status, To: to}
	}

	s.log.Info("order status changed",
		zap.String("order_id", orderID),
		zap.Stringer("from", order.Status),
		zap.Stringer("to", to))
	order.Status = to
	return order, nil
}

// MarkPaid moves a pending order to processing and enqueues an order.paid
// event in the same transaction. It reports false when the order had already
// been moved to processing or beyond, so repeated confirmations are harmless.
func (s *OrderService) MarkPaid(ctx context.Context, orderID string) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		order, err := s.GetOrder(ctx, orderID)
		if err != nil {
			return false, err
		}
		if order.Status.Reached(domain.OrderStatusProcessing) {
			return false, nil
		}
		if order.Status != domain.OrderStatusPending {
			return false, &domain.IllegalTransitionError{OrderID: orderID, From: order.Status, To: domain.OrderStatusProcessing}
		}

		event, err := s.orderPaidEvent(order)
		if err != nil {
			return false, err
		}
		changed, err := s.repo.TransitionStatus(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusProcessing, event)
		if err != nil {
			return false, &domain.PersistenceError{Op: "mark order paid", Err: err}
		}
		if changed {
			s.log.Info("order paid", zap.String("order_id", orderID), zap.String("user_id", order.UserID))
			return true, nil
		}
	}
	// lost the race twice; whoever won decided the outcome
	return false, nil
}

// CancelPending cancels an order that is still awaiting payment through
// sessionID. A failure reported for a session the order has since replaced,
// or for an order in any other status, leaves the order alone.
func (s *OrderService) CancelPending(ctx context.Context, orderID, sessionID string) (bool, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.Status != domain.OrderStatusPending {
		return false, nil
	}
	if order.PaymentSessionID != sessionID {
		s.log.Info("payment failure for superseded session",
			zap.String("order_id", orderID),
			zap.String("session_id", sessionID),
			zap.String("current_session_id", order.PaymentSessionID))
		return false, nil
	}
	changed, err := s.repo.CancelPendingSession(ctx, orderID, sessionID)
	if err != nil {
		return false, &domain.PersistenceError{Op: "cancel order", Err: err}
	}
	if changed {
		s.log.Info("unpaid order cancelled", zap.String("order_id", orderID), zap.String("session_id", sessionID))
	}
	return changed, nil
}

func (s *OrderService) orderPaidEvent(order *domain.Order) (*r.OutboxEvent, error) {
	payload, err := json.Marshal(domain.OrderPaidEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		PaidAt:      s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order paid event: %w", err)
	}
	return &r.OutboxEvent{
		AggregateId: order.ID,
		EventType:   domain.EventTypeOrderPaid,
		Payload:     payload,
	}, nil
}
