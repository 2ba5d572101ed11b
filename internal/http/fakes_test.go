package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/fjod/agrostore/internal/auth"
	cartservice "github.com/fjod/agrostore/internal/cart/service"
	"github.com/fjod/agrostore/internal/catalog"
	"github.com/fjod/agrostore/internal/checkout"
	"github.com/fjod/agrostore/internal/domain"
	"github.com/fjod/agrostore/internal/payment"
)

// testAuthenticate treats the bearer token as the user id; ids starting with
// "admin" get the admin role.
func testAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		role := domain.RoleCustomer
		if strings.HasPrefix(id, "admin") {
			role = domain.RoleAdmin
		}
		user := &domain.User{ID: id, Email: id + "@example.com", Role: role}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

type fakeCatalog struct {
	products []*domain.Product
	filter   catalog.Filter
}

func (c *fakeCatalog) ListProducts(_ context.Context, f catalog.Filter) ([]*domain.Product, error) {
	c.filter = f
	return c.products, nil
}

func (c *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	for _, p := range c.products {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

type fakeCartStore struct {
	mu    sync.Mutex
	lines []cartservice.LineView
	err   error
}

func (c *fakeCartStore) AddItem(_ context.Context, productID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if quantity < 1 {
		return &domain.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	c.lines = append(c.lines, cartservice.LineView{
		LineID:    fmt.Sprintf("line-%d", len(c.lines)+1),
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: 4599,
		LineTotal: domain.Money(4599).Mul(quantity),
		Available: true,
	})
	return nil
}

func (c *fakeCartStore) SetQuantity(_ context.Context, lineID string, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	for i := range c.lines {
		if c.lines[i].LineID == lineID {
			c.lines[i].Quantity = quantity
			c.lines[i].LineTotal = c.lines[i].UnitPrice.Mul(quantity)
			return nil
		}
	}
	return fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
}

func (c *fakeCartStore) RemoveItem(_ context.Context, lineID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.lines[:0]
	for _, l := range c.lines {
		if l.LineID != lineID {
			out = append(out, l)
		}
	}
	c.lines = out
	return nil
}

func (c *fakeCartStore) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	return nil
}

func (c *fakeCartStore) View(context.Context) (*cartservice.CartView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := &cartservice.CartView{Lines: append([]cartservice.LineView{}, c.lines...)}
	for _, l := range c.lines {
		v.TotalItems += l.Quantity
		v.TotalPrice += l.LineTotal
	}
	return v, nil
}

func cartOpener(store *fakeCartStore) CartOpener {
	return func(user *domain.User) (CartStore, error) {
		if user == nil {
			return nil, domain.ErrAuthRequired
		}
		return store, nil
	}
}

type fakeCheckout struct {
	result     *checkout.Result
	err        error
	returnBase string
	retriedID  string
}

func (f *fakeCheckout) Checkout(_ context.Context, user *domain.User, returnBase string) (*checkout.Result, error) {
	if user == nil {
		return nil, domain.ErrAuthRequired
	}
	f.returnBase = returnBase
	return f.result, f.err
}

func (f *fakeCheckout) RetryPayment(_ context.Context, _ *domain.User, orderID, _ string) (*checkout.Result, error) {
	f.retriedID = orderID
	return f.result, f.err
}

type fakeReturns struct {
	success   *checkout.SuccessResult
	sessionID string
}

func (f *fakeReturns) HandleSuccessReturn(_ context.Context, user *domain.User, sessionID string) (*checkout.SuccessResult, error) {
	if user == nil {
		return nil, domain.ErrAuthRequired
	}
	f.sessionID = sessionID
	return f.success, nil
}

func (f *fakeReturns) HandleCancelReturn(_ context.Context, user *domain.User) (*cartservice.CartView, error) {
	if user == nil {
		return nil, domain.ErrAuthRequired
	}
	return &cartservice.CartView{TotalItems: 2, TotalPrice: 9198}, nil
}

type fakeOrders struct {
	orders     map[string]*domain.Order
	listStatus domain.OrderStatus
	listLimit  int
}

func (f *fakeOrders) ListOrdersByUser(_ context.Context, userID string) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) GetOrderForUser(_ context.Context, user *domain.User, orderID string) (*domain.Order, error) {
	if user == nil {
		return nil, domain.ErrAuthRequired
	}
	o, ok := f.orders[orderID]
	if !ok || (o.UserID != user.ID && !user.IsAdmin()) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return o, nil
}

func (f *fakeOrders) ListOrders(_ context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error) {
	f.listStatus, f.listLimit = status, limit
	var out []*domain.Order
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrders) Transition(_ context.Context, orderID string, to domain.OrderStatus) (*domain.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if !domain.CanTransitionTo(o.Status, to) {
		return nil, &domain.IllegalTransitionError{OrderID: orderID, From: o.Status, To: to}
	}
	o.Status = to
	return o, nil
}

type fakeParser struct {
	event *payment.Event
	err   error
}

func (f *fakeParser) Parse([]byte, string) (*payment.Event, error) {
	return f.event, f.err
}

type fakeEvents struct {
	handled []*payment.Event
	err     error
}

func (f *fakeEvents) HandleEvent(_ context.Context, ev *payment.Event) error {
	f.handled = append(f.handled, ev)
	return f.err
}

type fakeSignOut struct {
	err error
}

func (f *fakeSignOut) SignOut(context.Context, *http.Request) error {
	return f.err
}
