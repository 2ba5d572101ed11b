package domain

import "time"

// ShippingPlaceholder is stored in the shipping columns at order creation;
// delivery details are collected after payment.
const ShippingPlaceholder = "To be provided"

const DefaultCurrency = "usd"

type OrderItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       Money  `json:"price"`
}

func (i OrderItem) LineTotal() Money {
	return i.Price.Mul(i.Quantity)
}

type Order struct {
	ID               string
	UserID           string
	TotalAmount      Money
	Currency         string
	Status           OrderStatus
	ShippingAddress  string
	ShippingCity     string
	Phone            string
	PaymentSessionID string
	Items            []OrderItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (o *Order) ItemsTotal() Money {
	var total Money
	for _, it := range o.Items {
		total += it.LineTotal()
	}
	return total
}

// OrderPaidEvent is the outbox payload emitted when a payment is confirmed.
type OrderPaidEvent struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	TotalAmount Money     `json:"total_amount"`
	Currency    string    `json:"currency"`
	PaidAt      time.Time `json:"paid_at"`
}

const EventTypeOrderPaid = "order.paid"
