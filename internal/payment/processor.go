package payment

import (
	"context"
	"errors"

	"github.com/fjod/agrostore/internal/domain"
)

// ErrRejected marks processor errors caused by the request itself (4xx). They
// do not count against the circuit breaker.
var ErrRejected = errors.New("payment processor rejected the request")

type LineItem struct {
	Name       string
	UnitAmount int64 // minor units
	Quantity   int64
}

type SessionRequest struct {
	OrderID       string
	UserID        string
	CustomerID    string
	CustomerEmail string
	Currency      string
	Items         []LineItem
	SuccessURL    string
	CancelURL     string
}

// Session is the processor's hosted checkout session. Only ID is persisted on
// the order; the rest is read back from the processor when needed.
type Session struct {
	ID                string
	URL               string
	AmountTotal       domain.Money
	Currency          string
	PaymentStatus     string
	OrderID           string
	UserID            string
	ClientReferenceID string
}

// Paid reports whether the processor has collected the money, or needs none.
func (s *Session) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

// Processor is the hosted payment page provider.
type Processor interface {
	// FindCustomer returns the id of an existing customer with this email, or
	// "" when there is none.
	FindCustomer(ctx context.Context, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetCheckoutSession(ctx context.Context, id string) (*Session, error)
}
