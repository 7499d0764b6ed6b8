package cart

type Cart struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
}

// LineProduct is the current catalog view joined into a cart line for
// display. Price here is the live price, not the snapshot later copied into
// an order item.
type LineProduct struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

type Line struct {
	ID       int64       `json:"id"`
	Quantity int         `json:"quantity"`
	Product  LineProduct `json:"product"`
}

type CartResponse struct {
	CartID int64  `json:"cart_id"`
	Items  []Line `json:"items"`
	Total  int64  `json:"total"`
}

// CheckoutLine is a cart line joined with the catalog price at checkout time.
// The price carried here becomes the order item's frozen snapshot.
type CheckoutLine struct {
	ProductID int64
	Name      string
	Quantity  int
	Price     int64
}
