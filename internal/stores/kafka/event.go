package kafka

import "time"

const (
	TopicOrderCreated   = `orders.order-created`
	TopicOrderCancelled = `orders.order-cancelled`
)

// Events emitted after an order transaction commits. Consumers (reporting,
// notifications) key on order id.

type OrderCreatedEvent struct {
	OrderID     string    `json:"order_id"`
	UserID      int64     `json:"user_id"`
	TotalAmount int64     `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
}

type OrderCancelledEvent struct {
	OrderID     string    `json:"order_id"`
	CancelledBy int64     `json:"cancelled_by"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}
