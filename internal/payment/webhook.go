package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/agrostore/internal/domain"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

type EventKind int

const (
	EventIgnored EventKind = iota
	EventConfirmed
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventConfirmed:
		return "confirmed"
	case EventFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// Event is a verified processor notification about a checkout session.
type Event struct {
	ID          string
	Type        string
	Kind        EventKind
	SessionID   string
	OrderID     string
	UserID      string
	AmountTotal domain.Money
	Currency    string
}

type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

// Parse verifies the signature header and maps the event. Unsigned, tampered
// or stale payloads return ErrInvalidSignature; session events without order
// correlation return ErrMalformedEvent.
func (v *WebhookVerifier) Parse(payload []byte, signatureHeader string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		out.Kind = EventConfirmed
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		out.Kind = EventFailed
	default:
		return out, nil
	}

	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, ev.ID)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	// delayed payment methods complete the session before the money arrives
	if ev.Type == "checkout.session.completed" && cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		out.Kind = EventIgnored
	}

	out.SessionID = cs.ID
	out.OrderID = cs.Metadata["order_id"]
	if out.OrderID == "" {
		out.OrderID = cs.ClientReferenceID
	}
	out.UserID = cs.Metadata["user_id"]
	out.AmountTotal = domain.Money(cs.AmountTotal)
	out.Currency = string(cs.Currency)

	if out.OrderID == "" || out.UserID == "" {
		return nil, fmt.Errorf("%w: session %s has no order correlation", ErrMalformedEvent, cs.ID)
	}
	return out, nil
}
