package orders

import "time"

// Order is the immutable snapshot of a completed checkout. Only Status is
// ever mutated after creation.
type Order struct {
	ID              string      `json:"id"`
	UserID          int64       `json:"user_id"`
	TotalAmount     int64       `json:"total_amount"` // minor currency units
	Status          Status      `json:"status"`
	ShippingAddress string      `json:"shipping_address"`
	PaymentMethod   string      `json:"payment_method"` // opaque, never charged here
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	Items           []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	ID          int64  `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"` // price at order time, copied not referenced
}
