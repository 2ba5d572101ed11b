package checkout

import (
	"context"
	"errors"
	"fmt"

	cartservice "github.com/fjod/agrostore/internal/cart/service"
	"github.com/fjod/agrostore/internal/domain"
	"github.com/fjod/agrostore/internal/payment"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var ErrAmountMismatch = fmt.Errorf("paid amount does not match order total: %w", domain.ErrValidation)

// SuccessResult describes what the success return page did. The order is
// returned as stored; a browser redirect never changes its status.
type SuccessResult struct {
	Verified    bool          `json:"verified"`
	CartCleared bool          `json:"cart_cleared"`
	Order       *domain.Order `json:"order,omitempty"`
}

// Reconciler handles the two payment outcome signals: the user's browser
// coming back from the processor, and the processor's signed notification.
// Only the notification changes order status.
type Reconciler struct {
	carts    Carts
	orders   Orders
	payments Payments
	log      *zap.Logger
}

func NewReconciler(carts Carts, orders Orders, payments Payments, log *zap.Logger) *Reconciler {
	return &Reconciler{carts: carts, orders: orders, payments: payments, log: log}
}

// HandleSuccessReturn clears the cart once the session is confirmed to belong
// to the caller and to be paid. An absent session id is a no-op.
func (r *Reconciler) HandleSuccessReturn(ctx context.Context, user *domain.User, sessionID string) (res *SuccessResult, err error) {
	ctx, span := tracer.Start(ctx, "checkout.success_return")
	defer func() { endSpan(span, err) }()

	if user == nil || user.ID == "" {
		return nil, domain.ErrAuthRequired
	}
	if sessionID == "" {
		return &SuccessResult{}, nil
	}

	session, err := r.payments.LookupSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order_id", session.OrderID))
	if session.UserID != user.ID {
		r.log.Warn("payment session belongs to another user",
			zap.String("session_id", sessionID),
			zap.String("user_id", user.ID))
		return &SuccessResult{}, nil
	}
	if !session.Paid() {
		r.log.Info("success return for unpaid session, cart kept",
			zap.String("session_id", sessionID),
			zap.String("payment_status", session.PaymentStatus))
		return &SuccessResult{}, nil
	}

	cart, err := r.carts.ForUser(user)
	if err != nil {
		return nil, err
	}
	if err := cart.Clear(ctx); err != nil {
		return nil, err
	}

	res = &SuccessResult{Verified: true, CartCleared: true}
	if session.OrderID != "" {
		order, err := r.orders.GetOrderForUser(ctx, user, session.OrderID)
		if err != nil {
			r.log.Warn("failed to load order for payment session",
				zap.String("session_id", sessionID), zap.String("order_id", session.OrderID), zap.Error(err))
		} else {
			res.Order = order
		}
	}
	return res, nil
}

// HandleCancelReturn leaves both the cart and the pending order untouched.
func (r *Reconciler) HandleCancelReturn(ctx context.Context, user *domain.User) (*cartservice.CartView, error) {
	cart, err := r.carts.ForUser(user)
	if err != nil {
		return nil, err
	}
	return cart.View(ctx)
}

// HandleEvent applies a verified processor notification.
func (r *Reconciler) HandleEvent(ctx context.Context, ev *payment.Event) error {
	switch ev.Kind {
	case payment.EventConfirmed:
		return r.OnPaymentConfirmed(ctx, ev)
	case payment.EventFailed:
		return r.OnPaymentFailed(ctx, ev)
	default:
		r.log.Debug("ignoring payment event", zap.String("event_id", ev.ID), zap.String("type", ev.Type))
		return nil
	}
}

// OnPaymentConfirmed marks the order paid after checking the paid amount
// against the stored total. A mismatch leaves the order pending.
func (r *Reconciler) OnPaymentConfirmed(ctx context.Context, ev *payment.Event) (err error) {
	ctx, span := tracer.Start(ctx, "checkout.payment_confirmed", withOrder(ev.OrderID),
		trace.WithAttributes(attribute.String("event_id", ev.ID)))
	defer func() { endSpan(span, err) }()

	order, err := r.orders.GetOrder(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	if order.UserID != ev.UserID {
		r.log.Error("payment event user does not own order",
			zap.String("event_id", ev.ID),
			zap.String("order_id", order.ID),
			zap.String("event_user_id", ev.UserID))
		return &domain.ValidationError{Field: "user_id", Reason: "does not match order owner"}
	}
	if ev.AmountTotal != order.TotalAmount {
		r.log.Error("payment amount mismatch",
			zap.String("event_id", ev.ID),
			zap.String("order_id", order.ID),
			zap.Stringer("paid", ev.AmountTotal),
			zap.Stringer("expected", order.TotalAmount))
		return fmt.Errorf("order %s: %w", order.ID, ErrAmountMismatch)
	}

	changed, err := r.orders.MarkPaid(ctx, order.ID)
	var illegal *domain.IllegalTransitionError
	if errors.As(err, &illegal) {
		r.log.Error("payment confirmed for order that can no longer be paid",
			zap.String("event_id", ev.ID),
			zap.String("order_id", order.ID),
			zap.Stringer("status", illegal.From))
		return err
	}
	if err != nil {
		return err
	}
	if !changed {
		r.log.Info("duplicate payment confirmation", zap.String("event_id", ev.ID), zap.String("order_id", order.ID))
	}
	return nil
}

// OnPaymentFailed cancels the order if it is still awaiting payment through
// the failed session. Failures of sessions replaced by a payment retry are
// ignored.
func (r *Reconciler) OnPaymentFailed(ctx context.Context, ev *payment.Event) (err error) {
	ctx, span := tracer.Start(ctx, "checkout.payment_failed", withOrder(ev.OrderID),
		trace.WithAttributes(attribute.String("session_id", ev.SessionID)))
	defer func() { endSpan(span, err) }()

	changed, err := r.orders.CancelPending(ctx, ev.OrderID, ev.SessionID)
	if err != nil {
		return err
	}
	if !changed {
		r.log.Info("payment failure left order unchanged",
			zap.String("event_id", ev.ID),
			zap.String("order_id", ev.OrderID),
			zap.String("session_id", ev.SessionID))
	}
	return nil
}
