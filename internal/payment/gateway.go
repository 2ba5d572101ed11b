package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/agrostore/internal/domain"
	"github.com/fjod/agrostore/internal/pricing"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

type ReturnURLs struct {
	SuccessURL string
	CancelURL  string
}

// ReturnURLsFor builds the storefront pages the processor redirects back to.
// The success URL carries the session id so the page can verify the payment.
func ReturnURLsFor(base string) ReturnURLs {
	base = strings.TrimRight(base, "/")
	return ReturnURLs{
		SuccessURL: base + "/payment-success?session_id=" + sessionPlaceholder,
		CancelURL:  base + "/payment-cancel",
	}
}

type Gateway struct {
	processor Processor
	breaker   *gobreaker.CircuitBreaker[*Session]
	currency  string
	timeout   time.Duration
	log       *zap.Logger
}

func NewGateway(processor Processor, currency string, timeout time.Duration, log *zap.Logger) *Gateway {
	st := gobreaker.Settings{
		Name:        "payment-processor",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	}
	return &Gateway{
		processor: processor,
		breaker:   gobreaker.NewCircuitBreaker[*Session](st),
		currency:  currency,
		timeout:   timeout,
		log:       log,
	}
}

// CreateSession opens a hosted payment session for a pending order. The lines
// must be the ones the order was written from; their sum is checked against the
// order total before anything is sent to the processor.
func (g *Gateway) CreateSession(ctx context.Context, caller *domain.User, order *domain.Order, lines []pricing.Line, urls ReturnURLs) (*Session, error) {
	if caller == nil || caller.ID == "" || caller.ID != order.UserID {
		return nil, domain.ErrAuthRequired
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}

	items := make([]LineItem, 0, len(lines))
	var sum domain.Money
	for _, l := range lines {
		items = append(items, LineItem{
			Name:       l.ProductName,
			UnitAmount: l.UnitPrice.MinorUnits(),
			Quantity:   int64(l.Quantity),
		})
		sum += l.UnitPrice.Mul(l.Quantity)
	}
	if sum != order.TotalAmount {
		return nil, &domain.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("line items sum to %s but order %s totals %s", sum, order.ID, order.TotalAmount),
		}
	}

	req := SessionRequest{
		OrderID:       order.ID,
		UserID:        order.UserID,
		CustomerID:    g.findCustomer(ctx, caller.Email),
		CustomerEmail: caller.Email,
		Currency:      g.currencyOf(order),
		Items:         items,
		SuccessURL:    urls.SuccessURL,
		CancelURL:     urls.CancelURL,
	}

	session, err := g.breaker.Execute(func() (*Session, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.processor.CreateCheckoutSession(callCtx, req)
	})
	if err != nil {
		return nil, &domain.GatewayError{OrderID: order.ID, Err: err}
	}
	if session.AmountTotal != 0 && session.AmountTotal != order.TotalAmount {
		return nil, &domain.GatewayError{
			OrderID: order.ID,
			Err:     fmt.Errorf("processor session %s totals %s, order totals %s", session.ID, session.AmountTotal, order.TotalAmount),
		}
	}

	g.log.Info("payment session created",
		zap.String("order_id", order.ID),
		zap.String("session_id", session.ID),
		zap.Stringer("amount", order.TotalAmount))
	return session, nil
}

// LookupSession reads a session back from the processor.
func (g *Gateway) LookupSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, &domain.ValidationError{Field: "session_id", Reason: "is required"}
	}
	session, err := g.breaker.Execute(func() (*Session, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return g.processor.GetCheckoutSession(callCtx, sessionID)
	})
	if err != nil {
		return nil, &domain.GatewayError{Err: err}
	}
	return session, nil
}

// findCustomer reuses an existing processor customer for the email. Failures
// only cost the prefilled checkout form, so they are logged and ignored.
func (g *Gateway) findCustomer(ctx context.Context, email string) string {
	if email == "" {
		return ""
	}
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	id, err := g.processor.FindCustomer(callCtx, email)
	if err != nil {
		g.log.Warn("customer lookup failed", zap.Error(err))
		return ""
	}
	return id
}

func (g *Gateway) currencyOf(order *domain.Order) string {
	if order.Currency != "" {
		return order.Currency
	}
	return g.currency
}
