package repository

import (
	"context"
	"errors"

	"github.com/fjod/agrostore/internal/config"
	"github.com/fjod/agrostore/internal/domain"
)

var ErrOrderNotFound = errors.New("order not found")

type Credentials = config.Postgres

type OutboxEvent struct {
	ID          int
	AggregateId string
	EventType   string
	Payload     []byte
}

type OrderRepository interface {
	// CreateOrder writes the order header and all of its items atomically.
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error)
	SetPaymentSession(ctx context.Context, orderID, sessionID string) error
	// TransitionStatus moves the order from one status to another only if it is
	// still in from. The optional event is enqueued in the same transaction.
	TransitionStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, event *OutboxEvent) (bool, error)
	// CancelPendingSession cancels a pending order whose current payment
	// session is sessionID. Orders paying through another session are kept.
	CancelPendingSession(ctx context.Context, orderID, sessionID string) (bool, error)
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
}
