// Package testdb provides the shared Postgres helper for database-backed
// tests. Tests skip when TEST_DATABASE_URL is not set.
package testdb

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/alex-brain/marketplace-backend/internal/stores/postgres"
)

// Open connects to the test database, applies migrations and truncates every
// table so each test starts clean.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database test")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("pinging test database: %v", err)
	}

	if err := postgres.RunMigrations(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	_, err = db.Exec(`TRUNCATE order_items, orders, cart_items, cart, products RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncating test database: %v", err)
	}

	return db
}

// SeedProduct inserts a catalog row and returns its id.
func SeedProduct(t *testing.T, db *sql.DB, name string, price int64, stock int) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(`
		INSERT INTO products (name, price, stock) VALUES ($1, $2, $3) RETURNING id
	`, name, price, stock).Scan(&id)
	if err != nil {
		t.Fatalf("seeding product %q: %v", name, err)
	}
	return id
}

// ProductStock reads the current stock of a product.
func ProductStock(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()

	var stock int
	if err := db.QueryRow(`SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock); err != nil {
		t.Fatalf("reading stock for product %d: %v", productID, err)
	}
	return stock
}
