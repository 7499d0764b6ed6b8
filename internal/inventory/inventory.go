// Package inventory is the single owner of the products.stock column. Nothing
// else in the codebase mutates stock.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/alex-brain/marketplace-backend/internal/apperr"
)

// Line is one (product, quantity) pair of a reservation.
type Line struct {
	ProductID int64
	Quantity  int
}

type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Ledger{db: db}, nil
}

// CheckAvailability reports whether current stock covers the requested
// quantity, along with the stock observed. The read is advisory: it holds no
// lock and reserves nothing. Only ReserveBatch is authoritative.
func (l *Ledger) CheckAvailability(ctx context.Context, productID int64, quantity int) (bool, int, error) {
	var stock int
	err := l.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, fmt.Errorf("product %d: %w", productID, apperr.ErrNotFound)
	}
	if err != nil {
		return false, 0, apperr.Transient(fmt.Errorf("querying stock for product %d: %w", productID, err))
	}
	return stock >= quantity, stock, nil
}

// ReserveBatch locks every product row, verifies that each line has enough
// stock, then decrements all of them. It runs inside the caller's transaction:
// on any error the caller rolls back and nothing is applied. Rows are locked
// in product id order so concurrent reservations cannot deadlock.
func (l *Ledger) ReserveBatch(ctx context.Context, tx *sql.Tx, lines []Line) error {
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, line := range sorted {
		var stock int
		err := tx.QueryRowContext(ctx,
			`SELECT stock FROM products WHERE id = $1 FOR UPDATE`, line.ProductID).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product %d: %w", line.ProductID, apperr.ErrNotFound)
		}
		if err != nil {
			return apperr.Transient(fmt.Errorf("locking product %d: %w", line.ProductID, err))
		}
		if stock < line.Quantity {
			return &apperr.InsufficientStockError{
				ProductID: line.ProductID,
				Available: stock,
				Requested: line.Quantity,
			}
		}
	}

	for _, line := range sorted {
		_, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2`,
			line.Quantity, line.ProductID)
		if err != nil {
			return apperr.Transient(fmt.Errorf("decrementing stock for product %d: %w", line.ProductID, err))
		}
	}
	return nil
}

// Release returns a previously reserved quantity to stock. Runs inside the
// caller's transaction so a cancellation's status flip and stock restore
// commit together.
func (l *Ledger) Release(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return apperr.Transient(fmt.Errorf("restoring stock for product %d: %w", productID, err))
	}
	return nil
}
