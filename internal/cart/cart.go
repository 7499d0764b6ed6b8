// Package cart owns the mutable per-user line-item collection. Availability
// checks here are advisory: nothing in this package reserves stock, carts are
// long-lived and must not hold locks while being browsed.
package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alex-brain/marketplace-backend/internal/apperr"
	"github.com/alex-brain/marketplace-backend/internal/inventory"
)

type Conf struct {
	db     *sql.DB
	ledger *inventory.Ledger
}

func NewConf(db *sql.DB, ledger *inventory.Ledger) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	return &Conf{db: db, ledger: ledger}, nil
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
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

// GetOrCreateCart returns the user's cart, creating an empty one on first
// access. Idempotent: concurrent first accesses converge on a single cart via
// the unique user_id constraint.
func (c *Conf) GetOrCreateCart(ctx context.Context, userID int64) (Cart, error) {
	var ct Cart
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id FROM cart WHERE user_id = $1`, userID).Scan(&ct.ID, &ct.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			err = tx.QueryRowContext(ctx, `
				INSERT INTO cart (user_id, created_at, updated_at)
				VALUES ($1, NOW(), NOW())
				ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
				RETURNING id, user_id
			`, userID).Scan(&ct.ID, &ct.UserID)
		}
		if err != nil {
			return apperr.Transient(fmt.Errorf("getting or creating cart for user %d: %w", userID, err))
		}
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	return ct, nil
}

// ListLines returns the cart's lines joined with current product details and
// a running total at today's prices.
func (c *Conf) ListLines(ctx context.Context, userID int64) (CartResponse, error) {
	ct, err := c.GetOrCreateCart(ctx, userID)
	if err != nil {
		return CartResponse{}, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT ci.id, ci.quantity, p.id, p.name, p.price, p.stock
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id
	`, ct.ID)
	if err != nil {
		return CartResponse{}, apperr.Transient(fmt.Errorf("querying cart items: %w", err))
	}
	defer rows.Close()

	resp := CartResponse{CartID: ct.ID, Items: []Line{}}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.Quantity,
			&line.Product.ID, &line.Product.Name, &line.Product.Price, &line.Product.Stock); err != nil {
			return CartResponse{}, apperr.Transient(fmt.Errorf("scanning cart item: %w", err))
		}
		resp.Total += line.Product.Price * int64(line.Quantity)
		resp.Items = append(resp.Items, line)
	}
	if err := rows.Err(); err != nil {
		return CartResponse{}, apperr.Transient(fmt.Errorf("iterating cart items: %w", err))
	}
	return resp, nil
}

// AddLine puts quantity units of a product into the user's cart. If the
// product already has a line the quantities merge; the availability check
// always runs against the merged total, not the delta.
func (c *Conf) AddLine(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	return c.withTx(ctx, func(tx *sql.Tx) error {
		var cartID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM cart WHERE user_id = $1 FOR UPDATE`, userID).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			err = tx.QueryRowContext(ctx, `
				INSERT INTO cart (user_id, created_at, updated_at)
				VALUES ($1, NOW(), NOW())
				ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
				RETURNING id
			`, userID).Scan(&cartID)
		}
		if err != nil {
			return apperr.Transient(fmt.Errorf("getting or creating cart for user %d: %w", userID, err))
		}

		var itemID int64
		var existingQuantity int
		newQuantity := quantity
		err = tx.QueryRowContext(ctx, `
			SELECT id, quantity FROM cart_items
			WHERE cart_id = $1 AND product_id = $2
		`, cartID, productID).Scan(&itemID, &existingQuantity)
		haveLine := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return apperr.Transient(fmt.Errorf("querying cart item: %w", err))
		}
		if haveLine {
			newQuantity = existingQuantity + quantity
		}

		ok, available, err := c.ledger.CheckAvailability(ctx, productID, newQuantity)
		if err != nil {
			return err
		}
		if !ok {
			return &apperr.InsufficientStockError{
				ProductID: productID,
				Available: available,
				Requested: newQuantity,
			}
		}

		if haveLine {
			_, err = tx.ExecContext(ctx, `
				UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2
			`, newQuantity, itemID)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO cart_items (cart_id, product_id, quantity, created_at, updated_at)
				VALUES ($1, $2, $3, NOW(), NOW())
			`, cartID, productID, quantity)
		}
		if err != nil {
			return apperr.Transient(fmt.Errorf("writing cart item: %w", err))
		}
		return nil
	})
}

// UpdateLineQuantity sets a line's quantity. The line must belong to the
// caller's cart; touching another user's line is AccessDenied regardless of
// whether the item exists elsewhere.
func (c *Conf) UpdateLineQuantity(ctx context.Context, userID, itemID int64, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	return c.withTx(ctx, func(tx *sql.Tx) error {
		var ownerID, productID int64
		err := tx.QueryRowContext(ctx, `
			SELECT c.user_id, ci.product_id
			FROM cart_items ci
			JOIN cart c ON c.id = ci.cart_id
			WHERE ci.id = $1
		`, itemID).Scan(&ownerID, &productID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cart item %d: %w", itemID, apperr.ErrNotFound)
		}
		if err != nil {
			return apperr.Transient(fmt.Errorf("querying cart item %d: %w", itemID, err))
		}
		if ownerID != userID {
			return apperr.ErrAccessDenied
		}

		ok, available, err := c.ledger.CheckAvailability(ctx, productID, quantity)
		if err != nil {
			return err
		}
		if !ok {
			return &apperr.InsufficientStockError{
				ProductID: productID,
				Available: available,
				Requested: quantity,
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2
		`, quantity, itemID)
		if err != nil {
			return apperr.Transient(fmt.Errorf("updating cart item %d: %w", itemID, err))
		}
		return nil
	})
}

// RemoveLine deletes one line from the caller's cart, ownership-checked the
// same way as UpdateLineQuantity.
func (c *Conf) RemoveLine(ctx context.Context, userID, itemID int64) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		var ownerID int64
		err := tx.QueryRowContext(ctx, `
			SELECT c.user_id
			FROM cart_items ci
			JOIN cart c ON c.id = ci.cart_id
			WHERE ci.id = $1
		`, itemID).Scan(&ownerID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cart item %d: %w", itemID, apperr.ErrNotFound)
		}
		if err != nil {
			return apperr.Transient(fmt.Errorf("querying cart item %d: %w", itemID, err))
		}
		if ownerID != userID {
			return apperr.ErrAccessDenied
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
		if err != nil {
			return apperr.Transient(fmt.Errorf("deleting cart item %d: %w", itemID, err))
		}
		return nil
	})
}

// Clear removes every line from the user's cart. The cart row itself stays.
func (c *Conf) Clear(ctx context.Context, userID int64) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		var cartID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM cart WHERE user_id = $1`, userID).Scan(&cartID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cart for user %d: %w", userID, apperr.ErrNotFound)
		}
		if err != nil {
			return apperr.Transient(fmt.Errorf("querying cart for user %d: %w", userID, err))
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
		if err != nil {
			return apperr.Transient(fmt.Errorf("clearing cart %d: %w", cartID, err))
		}
		return nil
	})
}

// LinesForCheckout returns the cart id and its lines joined with the catalog
// price frozen at this instant. It runs inside the order-creation transaction
// and locks the cart row, so two checkouts for the same user serialize.
func (c *Conf) LinesForCheckout(ctx context.Context, tx *sql.Tx, userID int64) (int64, []CheckoutLine, error) {
	var cartID int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM cart WHERE user_id = $1 FOR UPDATE`, userID).Scan(&cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, apperr.ErrEmptyCart
	}
	if err != nil {
		return 0, nil, apperr.Transient(fmt.Errorf("locking cart for user %d: %w", userID, err))
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT ci.product_id, p.name, ci.quantity, p.price
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.product_id
	`, cartID)
	if err != nil {
		return 0, nil, apperr.Transient(fmt.Errorf("querying checkout lines: %w", err))
	}
	defer rows.Close()

	var lines []CheckoutLine
	for rows.Next() {
		var line CheckoutLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity, &line.Price); err != nil {
			return 0, nil, apperr.Transient(fmt.Errorf("scanning checkout line: %w", err))
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, apperr.Transient(fmt.Errorf("iterating checkout lines: %w", err))
	}
	return cartID, lines, nil
}

// ClearTx empties the cart inside the caller's transaction, used at the end
// of checkout so the cart clears atomically with the order.
func (c *Conf) ClearTx(ctx context.Context, tx *sql.Tx, cartID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return apperr.Transient(fmt.Errorf("clearing cart %d: %w", cartID, err))
	}
	return nil
}
