package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fjod/agrostore/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const consumerGroup = "cart-clearer"

// CartClearer empties a user's cart.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

// MessageReader is satisfied by *kafka.Reader.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Poller clears the paying user's cart once an order.paid event arrives, so
// the cart is emptied even when the buyer never returns to the success page.
type Poller struct {
	carts  CartClearer
	reader MessageReader
	log    *zap.Logger
	// retry paces attempts at a message whose cart could not be cleared.
	retry backoff.BackOff
}

func NewPoller(carts CartClearer, log *zap.Logger, topic string, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  consumerGroup,
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{carts: carts, reader: reader, log: log, retry: newRetryBackOff()}
}

func newRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) poll(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.log.Warn("error reading message", zap.Error(err))
		}
		return
	}

	// commits are cumulative, so a message must be handled before the next
	// one is fetched
	if p.retry == nil {
		p.retry = newRetryBackOff()
	}
	err = backoff.RetryNotify(func() error {
		return p.handle(ctx, m)
	}, backoff.WithContext(p.retry, ctx), func(err error, wait time.Duration) {
		p.log.Error("failed to clear cart for order event, retrying",
			zap.Int64("offset", m.Offset), zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		// shutting down; the message stays uncommitted
		p.log.Warn("order event left unhandled",
			zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil {
		p.log.Warn("failed to commit message", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

// handle returns an error only when retrying may help. Malformed messages are
// logged and skipped.
func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != domain.EventTypeOrderPaid {
		return nil
	}

	var event domain.OrderPaidEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.log.Warn("error parsing message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if event.UserID == "" {
		p.log.Warn("missing user_id in order event", zap.String("order_id", event.OrderID))
		return nil
	}

	if err := p.carts.ClearCart(ctx, event.UserID); err != nil {
		return fmt.Errorf("clear cart of user %s: %w", event.UserID, err)
	}
	p.log.Info("cart cleared after payment",
		zap.String("user_id", event.UserID), zap.String("order_id", event.OrderID))
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
