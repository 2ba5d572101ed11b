package service

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/agrostore/internal/domain"
	r "github.com/fjod/agrostore/internal/orders/repository"
)

// MockRepository implements r.OrderRepository in memory.
type MockRepository struct {
	mu          sync.Mutex
	Orders      map[string]*domain.Order
	Outbox      []*r.OutboxEvent
	CreateErr   error
	Transitions int
	// RaceTo, when set, is applied just before the next TransitionStatus call
	// to simulate a concurrent writer.
	RaceTo domain.OrderStatus
}

func NewMockRepository() *MockRepository {
	return &MockRepository{Orders: map[string]*domain.Order{}}
}

func (m *MockRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	m.Orders[order.ID] = &cp
	return nil
}

func (m *MockRepository) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockRepository) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.Orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRepository) ListOrders(_ context.Context, status domain.OrderStatus, _ int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.Orders {
		if status == "" || o.Status == status {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockRepository) SetPaymentSession(_ context.Context, orderID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[orderID]
	if !ok {
		return r.ErrOrderNotFound
	}
	o.PaymentSessionID = sessionID
	return nil
}

func (m *MockRepository) TransitionStatus(_ context.Context, orderID string, from, to domain.OrderStatus, event *r.OutboxEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[orderID]
	if !ok {
		return false, errors.New("no such row")
	}
	if m.RaceTo != "" {
		o.Status = m.RaceTo
		m.RaceTo = ""
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	m.Transitions++
	if event != nil {
		m.Outbox = append(m.Outbox, event)
	}
	return true, nil
}

func (m *MockRepository) CancelPendingSession(_ context.Context, orderID, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending || o.PaymentSessionID != sessionID {
		return false, nil
	}
	o.Status = domain.OrderStatusCancelled
	return true, nil
}
