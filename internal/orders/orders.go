// Package orders is the only path by which an order is created or cancelled.
// Checkout and cancellation each run as a single database transaction so
// stock arithmetic, order rows and cart state commit or roll back together.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alex-brain/marketplace-backend/internal/apperr"
	"github.com/alex-brain/marketplace-backend/internal/auth"
	"github.com/alex-brain/marketplace-backend/internal/cart"
	"github.com/alex-brain/marketplace-backend/internal/inventory"
)

type Conf struct {
	db     *sql.DB
	carts  *cart.Conf
	ledger *inventory.Ledger
}

func NewConf(db *sql.DB, carts *cart.Conf, ledger *inventory.Ledger) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart store is nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	return &Conf{db: db, carts: carts, ledger: ledger}, nil
}

func (o *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Transient(fmt.Errorf("beginning tx: %w", err))
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return apperr.Transient(fmt.Errorf("rolling back tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Transient(fmt.Errorf("committing tx: %w", err))
	}
	return nil
}

// CreateOrder converts the user's cart into an immutable order. Within one
// transaction it freezes current prices, reserves stock for every line,
// persists the order with its item snapshot and clears the cart. Any failure
// rolls back every effect, including stock already reserved.
func (o *Conf) CreateOrder(ctx context.Context, userID int64, shippingAddress, paymentMethod string) (Order, error) {
	ord := Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          StatusPending,
		ShippingAddress: shippingAddress,
		PaymentMethod:   paymentMethod,
	}

	err := o.withTx(ctx, func(tx *sql.Tx) error {
		cartID, lines, err := o.carts.LinesForCheckout(ctx, tx, userID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.ErrEmptyCart
		}

		reservation := make([]inventory.Line, 0, len(lines))
		for _, line := range lines {
			ord.TotalAmount += line.Price * int64(line.Quantity)
			reservation = append(reservation, inventory.Line{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
			})
		}

		if err := o.ledger.ReserveBatch(ctx, tx, reservation); err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO orders (id, user_id, total_amount, status, shipping_address, payment_method, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
			RETURNING created_at, updated_at
		`, ord.ID, ord.UserID, ord.TotalAmount, string(ord.Status), ord.ShippingAddress, ord.PaymentMethod).
			Scan(&ord.CreatedAt, &ord.UpdatedAt)
		if err != nil {
			return apperr.Transient(fmt.Errorf("inserting order: %w", err))
		}

		var itemsTotal int64
		for _, line := range lines {
			var item OrderItem
			err = tx.QueryRowContext(ctx, `
				INSERT INTO order_items (order_id, product_id, quantity, price)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, ord.ID, line.ProductID, line.Quantity, line.Price).Scan(&item.ID)
			if err != nil {
				return apperr.Transient(fmt.Errorf("inserting order item for product %d: %w", line.ProductID, err))
			}
			item.OrderID = ord.ID
			item.ProductID = line.ProductID
			item.ProductName = line.Name
			item.Quantity = line.Quantity
			item.Price = line.Price
			itemsTotal += line.Price * int64(line.Quantity)
			ord.Items = append(ord.Items, item)
		}
		if itemsTotal != ord.TotalAmount {
			return &apperr.InvariantViolationError{
				Reason: fmt.Sprintf("order %s total %d does not match items total %d", ord.ID, ord.TotalAmount, itemsTotal),
			}
		}

		return o.carts.ClearTx(ctx, tx, cartID)
	})
	if err != nil {
		return Order{}, err
	}
	return ord, nil
}

// CancelOrder flips the order to cancelled and returns every order item's
// quantity to stock, both in one transaction. Customers may cancel only their
// own pending orders; sellers and admins may cancel any non-terminal order.
func (o *Conf) CancelOrder(ctx context.Context, userID int64, role, orderID string) error {
	privileged := auth.IsPrivileged(role)

	return o.withTx(ctx, func(tx *sql.Tx) error {
		var ownerID int64
		var statusStr string
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&ownerID, &statusStr)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		if err != nil {
			return apperr.Transient(fmt.Errorf("locking order %s: %w", orderID, err))
		}

		if !privileged && ownerID != userID {
			return apperr.ErrAccessDenied
		}
		if err := Transition(Status(statusStr), StatusCancelled, privileged); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
			string(StatusCancelled), orderID)
		if err != nil {
			return apperr.Transient(fmt.Errorf("updating order %s status: %w", orderID, err))
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT product_id, quantity FROM order_items WHERE order_id = $1 ORDER BY product_id`, orderID)
		if err != nil {
			return apperr.Transient(fmt.Errorf("querying order items for %s: %w", orderID, err))
		}
		defer rows.Close()

		var items []inventory.Line
		for rows.Next() {
			var item inventory.Line
			if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
				return apperr.Transient(fmt.Errorf("scanning order item: %w", err))
			}
			items = append(items, item)
		}
		if err := rows.Err(); err != nil {
			return apperr.Transient(fmt.Errorf("iterating order items: %w", err))
		}

		for _, item := range items {
			if err := o.ledger.Release(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateStatus advances an order along the fulfillment path. It never touches
// inventory: a cancelled target is rejected here so stock restoration happens
// exactly once, via CancelOrder.
func (o *Conf) UpdateStatus(ctx context.Context, orderID string, to Status) error {
	return o.withTx(ctx, func(tx *sql.Tx) error {
		var statusStr string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&statusStr)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
		}
		if err != nil {
			return apperr.Transient(fmt.Errorf("locking order %s: %w", orderID, err))
		}

		if to == StatusCancelled {
			return &apperr.InvalidTransitionError{From: statusStr, To: string(to)}
		}
		if err := Transition(Status(statusStr), to, false); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`,
			string(to), orderID)
		if err != nil {
			return apperr.Transient(fmt.Errorf("updating order %s status: %w", orderID, err))
		}
		return nil
	})
}

// GetOrders lists orders newest first: customers see their own, privileged
// roles see everything.
func (o *Conf) GetOrders(ctx context.Context, userID int64, role string) ([]Order, error) {
	privileged := auth.IsPrivileged(role)

	query := `
		SELECT id, user_id, total_amount, status, shipping_address, payment_method, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	args := []any{userID}
	if privileged {
		query = `
			SELECT id, user_id, total_amount, status, shipping_address, payment_method, created_at, updated_at
			FROM orders
			ORDER BY created_at DESC
		`
		args = nil
	}

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Transient(fmt.Errorf("querying orders: %w", err))
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		var ord Order
		if err := rows.Scan(&ord.ID, &ord.UserID, &ord.TotalAmount, &ord.Status,
			&ord.ShippingAddress, &ord.PaymentMethod, &ord.CreatedAt, &ord.UpdatedAt); err != nil {
			return nil, apperr.Transient(fmt.Errorf("scanning order: %w", err))
		}
		orders = append(orders, ord)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient(fmt.Errorf("iterating orders: %w", err))
	}

	for i := range orders {
		items, err := o.orderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

// GetOrderByID loads one order with its items. Customers may only read their
// own orders.
func (o *Conf) GetOrderByID(ctx context.Context, userID int64, role, orderID string) (Order, error) {
	privileged := auth.IsPrivileged(role)

	var ord Order
	err := o.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, status, shipping_address, payment_method, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, orderID).Scan(&ord.ID, &ord.UserID, &ord.TotalAmount, &ord.Status,
		&ord.ShippingAddress, &ord.PaymentMethod, &ord.CreatedAt, &ord.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, fmt.Errorf("order %s: %w", orderID, apperr.ErrNotFound)
	}
	if err != nil {
		return Order{}, apperr.Transient(fmt.Errorf("querying order %s: %w", orderID, err))
	}

	if !privileged && ord.UserID != userID {
		return Order{}, apperr.ErrAccessDenied
	}

	items, err := o.orderItems(ctx, ord.ID)
	if err != nil {
		return Order{}, err
	}
	ord.Items = items
	return ord, nil
}

func (o *Conf) orderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.price
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id
	`, orderID)
	if err != nil {
		return nil, apperr.Transient(fmt.Errorf("querying order items for %s: %w", orderID, err))
	}
	defer rows.Close()

	items := []OrderItem{}
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID,
			&item.ProductName, &item.Quantity, &item.Price); err != nil {
			return nil, apperr.Transient(fmt.Errorf("scanning order item: %w", err))
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient(fmt.Errorf("iterating order items: %w", err))
	}
	return items, nil
}

// GetOrderCounts returns order counts per status plus an "all" total.
func (o *Conf) GetOrderCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{
		"all":                    0,
		string(StatusPending):    0,
		string(StatusProcessing): 0,
		string(StatusShipped):    0,
		string(StatusDelivered):  0,
		string(StatusCancelled):  0,
	}

	rows, err := o.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, apperr.Transient(fmt.Errorf("counting orders: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperr.Transient(fmt.Errorf("scanning order count: %w", err))
		}
		counts[status] = count
		counts["all"] += count
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transient(fmt.Errorf("iterating order counts: %w", err))
	}
	return counts, nil
}
