package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cartservice "github.com/fjod/agrostore/internal/cart/service"
	"github.com/fjod/agrostore/internal/domain"
	r "github.com/fjod/agrostore/internal/orders/repository"
	orderservice "github.com/fjod/agrostore/internal/orders/service"
	"github.com/fjod/agrostore/internal/payment"
	"github.com/fjod/agrostore/internal/pricing"
	"go.uber.org/zap"
)

const (
	tomatoSeeds  = "7f1c2a4e-0d3b-4c55-9a61-2b8e4f0a1c01"
	compostBlend = "7f1c2a4e-0d3b-4c55-9a61-2b8e4f0a1c02"
	fertilizer   = "7f1c2a4e-0d3b-4c55-9a61-2b8e4f0a1c05"
)

type fakeCart struct {
	mu       sync.Mutex
	lines    []domain.CartLine
	cleared  bool
	clearErr error
}

func (c *fakeCart) Lines(context.Context) ([]domain.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.CartLine(nil), c.lines...), nil
}

func (c *fakeCart) View(context.Context) (*cartservice.CartView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := &cartservice.CartView{}
	for _, l := range c.lines {
		v.Lines = append(v.Lines, cartservice.LineView{LineID: l.ID, ProductID: l.ProductID, Quantity: l.Quantity, Available: true})
		v.TotalItems += l.Quantity
	}
	return v, nil
}

func (c *fakeCart) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clearErr != nil {
		return c.clearErr
	}
	c.lines = nil
	c.cleared = true
	return nil
}

func (c *fakeCart) add(productID string, qty int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, domain.CartLine{
		ID:        fmt.Sprintf("line-%d", len(c.lines)+1),
		ProductID: productID,
		Quantity:  qty,
	})
}

type fakeCarts struct {
	mu    sync.Mutex
	carts map[string]*fakeCart
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: map[string]*fakeCart{}}
}

func (f *fakeCarts) ForUser(user *domain.User) (CartStore, error) {
	if user == nil || user.ID == "" {
		return nil, domain.ErrAuthRequired
	}
	return f.cart(user.ID), nil
}

func (f *fakeCarts) cart(userID string) *fakeCart {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok {
		c = &fakeCart{}
		f.carts[userID] = c
	}
	return c
}

type fakeCatalog map[string]*domain.Product

func (c fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := c[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func seededCatalog() fakeCatalog {
	return fakeCatalog{
		tomatoSeeds:  {ID: tomatoSeeds, Name: "Tomato Seeds", Price: 4599, Stock: 40},
		compostBlend: {ID: compostBlend, Name: "Compost Blend", Price: 3250, Stock: 25},
		fertilizer:   {ID: fertilizer, Name: "Organic Fertilizer", Price: 1840, Stock: 0},
	}
}

// memOrders implements the order repository in memory.
type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	outbox []*r.OutboxEvent
}

func newMemOrders() *memOrders {
	return &memOrders{orders: map[string]*domain.Order{}}
}

func (m *memOrders) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	cp.Items = append([]domain.OrderItem(nil), order.Items...)
	m.orders[order.ID] = &cp
	return nil
}

func (m *memOrders) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListOrdersByUserID(_ context.Context, userID string) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOrders) ListOrders(_ context.Context, status domain.OrderStatus, _ int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if status == "" || o.Status == status {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memOrders) SetPaymentSession(_ context.Context, orderID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return r.ErrOrderNotFound
	}
	o.PaymentSessionID = sessionID
	return nil
}

func (m *memOrders) TransitionStatus(_ context.Context, orderID string, from, to domain.OrderStatus, event *r.OutboxEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if event != nil {
		m.outbox = append(m.outbox, event)
	}
	return true, nil
}

func (m *memOrders) CancelPendingSession(_ context.Context, orderID, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != domain.OrderStatusPending || o.PaymentSessionID != sessionID {
		return false, nil
	}
	o.Status = domain.OrderStatusCancelled
	return true, nil
}

func (m *memOrders) only() *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		cp := *o
		return &cp
	}
	return nil
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memOrders) events() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outbox)
}

// fakeProcessor records sessions and answers lookups from them.
type fakeProcessor struct {
	mu        sync.Mutex
	createErr error
	sessions  map[string]*payment.Session
	created   int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{sessions: map[string]*payment.Session{}}
}

func (p *fakeProcessor) FindCustomer(context.Context, string) (string, error) {
	return "", nil
}

func (p *fakeProcessor) CreateCheckoutSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created++
	var total domain.Money
	for _, it := range req.Items {
		total += domain.Money(it.UnitAmount * it.Quantity)
	}
	s := &payment.Session{
		ID:            fmt.Sprintf("cs_test_%d", p.created),
		URL:           "https://checkout.example/pay/" + req.OrderID,
		AmountTotal:   total,
		Currency:      req.Currency,
		PaymentStatus: "unpaid",
		OrderID:       req.OrderID,
		UserID:        req.UserID,
	}
	p.sessions[s.ID] = s
	return s, nil
}

func (p *fakeProcessor) GetCheckoutSession(_ context.Context, id string) (*payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	if !ok {
		return nil, fmt.Errorf("no such checkout session %s: %w", id, payment.ErrRejected)
	}
	cp := *s
	return &cp, nil
}

// pay marks a session as paid, as the processor does once the buyer completes
// the hosted page.
func (p *fakeProcessor) pay(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[id]; ok {
		s.PaymentStatus = "paid"
	}
}

var errProcessorDown = errors.New("processor unavailable")

// harness wires the real pricing, order and payment components over fakes.
type harness struct {
	carts      *fakeCarts
	catalog    fakeCatalog
	repo       *memOrders
	orders     *orderservice.OrderService
	processor  *fakeProcessor
	service    *Service
	reconciler *Reconciler
}

func newHarness() *harness {
	log := zap.NewNop()
	h := &harness{
		carts:     newFakeCarts(),
		catalog:   seededCatalog(),
		repo:      newMemOrders(),
		processor: newFakeProcessor(),
	}
	h.orders = orderservice.NewOrderService(h.repo, domain.DefaultCurrency, log)
	gateway := payment.NewGateway(h.processor, domain.DefaultCurrency, time.Second, log)
	h.service = NewService(h.carts, pricing.NewResolver(h.catalog), h.orders, gateway, log)
	h.reconciler = NewReconciler(h.carts, h.orders, gateway, log)
	return h
}
