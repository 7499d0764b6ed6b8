package orders_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/alex-brain/marketplace-backend/internal/apperr"
	"github.com/alex-brain/marketplace-backend/internal/auth"
	"github.com/alex-brain/marketplace-backend/internal/cart"
	"github.com/alex-brain/marketplace-backend/internal/inventory"
	"github.com/alex-brain/marketplace-backend/internal/orders"
	"github.com/alex-brain/marketplace-backend/internal/testdb"
)

func newWorkflow(t *testing.T) (*sql.DB, *cart.Conf, *orders.Conf) {
	t.Helper()
	db := testdb.Open(t)
	ledger, err := inventory.NewLedger(db)
	require.NoError(t, err)
	carts, err := cart.NewConf(db, ledger)
	require.NoError(t, err)
	workflow, err := orders.NewConf(db, carts, ledger)
	require.NoError(t, err)
	return db, carts, workflow
}

func cartLineCount(t *testing.T, db *sql.DB, userID int64) int {
	t.Helper()
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM cart_items ci JOIN cart c ON c.id = ci.cart_id WHERE c.user_id = $1
	`, userID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestCreateOrderHappyPath(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()

	p1 := testdb.SeedProduct(t, db, "keyboard", 4500, 10)
	p2 := testdb.SeedProduct(t, db, "mouse", 1500, 8)
	const userID = 1

	require.NoError(t, carts.AddLine(ctx, userID, p1, 2))
	require.NoError(t, carts.AddLine(ctx, userID, p2, 3))

	ord, err := workflow.CreateOrder(ctx, userID, "1 Main St", "card")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, ord.Status)
	assert.Equal(t, int64(2*4500+3*1500), ord.TotalAmount)
	require.Len(t, ord.Items, 2)

	var itemsTotal int64
	for _, item := range ord.Items {
		itemsTotal += item.Price * int64(item.Quantity)
	}
	assert.Equal(t, ord.TotalAmount, itemsTotal)

	assert.Equal(t, 8, testdb.ProductStock(t, db, p1))
	assert.Equal(t, 5, testdb.ProductStock(t, db, p2))
	assert.Zero(t, cartLineCount(t, db, userID), "checkout empties the cart")

	got, err := workflow.GetOrderByID(ctx, userID, auth.RoleCustomer, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, ord.TotalAmount, got.TotalAmount)
	assert.Equal(t, "1 Main St", got.ShippingAddress)
	assert.Equal(t, "card", got.PaymentMethod)
	require.Len(t, got.Items, 2)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()
	const userID = 1

	_, err := workflow.CreateOrder(ctx, userID, "1 Main St", "card")
	assert.ErrorIs(t, err, apperr.ErrEmptyCart, "no cart row yet")

	_, err = carts.GetOrCreateCart(ctx, userID)
	require.NoError(t, err)
	_, err = workflow.CreateOrder(ctx, userID, "1 Main St", "card")
	assert.ErrorIs(t, err, apperr.ErrEmptyCart, "cart exists but has no lines")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&count))
	assert.Zero(t, count)
}

func TestCreateOrderInsufficientStockRollsBackEverything(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()

	p1 := testdb.SeedProduct(t, db, "keyboard", 4500, 10)
	p2 := testdb.SeedProduct(t, db, "mouse", 1500, 2)
	const userID = 1

	require.NoError(t, carts.AddLine(ctx, userID, p1, 2))
	require.NoError(t, carts.AddLine(ctx, userID, p2, 2))

	// stock drops after the advisory add-time check passed
	_, err := db.Exec(`UPDATE products SET stock = 1 WHERE id = $1`, p2)
	require.NoError(t, err)

	_, err = workflow.CreateOrder(ctx, userID, "1 Main St", "card")
	var insufficient *apperr.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, p2, insufficient.ProductID)
	assert.Equal(t, 1, insufficient.Available)
	assert.Equal(t, 2, insufficient.Requested)

	assert.Equal(t, 10, testdb.ProductStock(t, db, p1), "reservation of the first line must roll back")
	assert.Equal(t, 1, testdb.ProductStock(t, db, p2))
	assert.Equal(t, 2, cartLineCount(t, db, userID), "cart survives a failed checkout")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&count))
	assert.Zero(t, count)
}

func TestConcurrentCheckoutsSerializeOnStock(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()

	productID := testdb.SeedProduct(t, db, "console", 30000, 5)
	const alice, bob = 1, 2

	require.NoError(t, carts.AddLine(ctx, alice, productID, 3))
	require.NoError(t, carts.AddLine(ctx, bob, productID, 3))

	results := make([]error, 2)
	g := new(errgroup.Group)
	g.Go(func() error {
		_, results[0] = workflow.CreateOrder(ctx, alice, "1 Main St", "card")
		return nil
	})
	g.Go(func() error {
		_, results[1] = workflow.CreateOrder(ctx, bob, "2 Side St", "cash")
		return nil
	})
	require.NoError(t, g.Wait())

	users := []int64{alice, bob}
	var wins, losses int
	for i, err := range results {
		if err == nil {
			wins++
			assert.Zero(t, cartLineCount(t, db, users[i]), "winner's cart is emptied")
			continue
		}
		var insufficient *apperr.InsufficientStockError
		require.ErrorAs(t, err, &insufficient, "loser must see InsufficientStock, got %v", err)
		losses++
		assert.Equal(t, 1, cartLineCount(t, db, users[i]), "loser's cart survives the failed checkout")
	}
	assert.Equal(t, 1, wins, "exactly one checkout may reserve the stock")
	assert.Equal(t, 1, losses)
	assert.Equal(t, 2, testdb.ProductStock(t, db, productID), "stock is 5 minus the winner's quantity")
}

func TestCancelOrderRestoresStockExactlyOnce(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()

	productID := testdb.SeedProduct(t, db, "chair", 8000, 5)
	const userID = 1

	require.NoError(t, carts.AddLine(ctx, userID, productID, 3))
	ord, err := workflow.CreateOrder(ctx, userID, "1 Main St", "card")
	require.NoError(t, err)
	require.Equal(t, 2, testdb.ProductStock(t, db, productID))

	require.NoError(t, workflow.CancelOrder(ctx, userID, auth.RoleCustomer, ord.ID))
	assert.Equal(t, 5, testdb.ProductStock(t, db, productID), "cancellation restores the ordered quantities")

	got, err := workflow.GetOrderByID(ctx, userID, auth.RoleCustomer, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)

	err = workflow.CancelOrder(ctx, userID, auth.RoleCustomer, ord.ID)
	var invalid *apperr.InvalidTransitionError
	require.ErrorAs(t, err, &invalid, "cancelling twice is rejected")
	assert.Equal(t, 5, testdb.ProductStock(t, db, productID), "stock is not restored twice")
}

func TestCancelOrderAuthorization(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()

	productID := testdb.SeedProduct(t, db, "desk", 15000, 10)
	const owner, stranger = 1, 2

	require.NoError(t, carts.AddLine(ctx, owner, productID, 2))
	ord, err := workflow.CreateOrder(ctx, owner, "1 Main St", "card")
	require.NoError(t, err)

	err = workflow.CancelOrder(ctx, stranger, auth.RoleCustomer, ord.ID)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	require.NoError(t, workflow.UpdateStatus(ctx, ord.ID, orders.StatusProcessing))

	err = workflow.CancelOrder(ctx, owner, auth.RoleCustomer, ord.ID)
	var invalid *apperr.InvalidTransitionError
	require.ErrorAs(t, err, &invalid, "customers may only cancel pending orders")

	require.NoError(t, workflow.CancelOrder(ctx, stranger, auth.RoleSeller, ord.ID))
	assert.Equal(t, 10, testdb.ProductStock(t, db, productID), "privileged cancel restores stock")
}

func TestCancelOrderNotFound(t *testing.T) {
	_, _, workflow := newWorkflow(t)

	err := workflow.CancelOrder(context.Background(), 1, auth.RoleAdmin, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateStatusFollowsFulfillmentPath(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()

	productID := testdb.SeedProduct(t, db, "shelf", 6000, 10)
	const userID = 1

	require.NoError(t, carts.AddLine(ctx, userID, productID, 1))
	ord, err := workflow.CreateOrder(ctx, userID, "1 Main St", "card")
	require.NoError(t, err)

	require.NoError(t, workflow.UpdateStatus(ctx, ord.ID, orders.StatusProcessing))
	require.NoError(t, workflow.UpdateStatus(ctx, ord.ID, orders.StatusShipped))

	var invalid *apperr.InvalidTransitionError
	err = workflow.UpdateStatus(ctx, ord.ID, orders.StatusProcessing)
	require.ErrorAs(t, err, &invalid)

	err = workflow.UpdateStatus(ctx, ord.ID, orders.StatusCancelled)
	require.ErrorAs(t, err, &invalid, "cancellation must go through CancelOrder")
	assert.Equal(t, 9, testdb.ProductStock(t, db, productID), "forward transitions never touch inventory")

	require.NoError(t, workflow.UpdateStatus(ctx, ord.ID, orders.StatusDelivered))

	err = workflow.UpdateStatus(ctx, ord.ID, orders.StatusProcessing)
	require.ErrorAs(t, err, &invalid, "delivered is terminal")

	err = workflow.CancelOrder(ctx, userID, auth.RoleAdmin, ord.ID)
	require.ErrorAs(t, err, &invalid, "even admins cannot cancel a delivered order")
}

func TestOrderPriceSnapshotIsImmuneToCatalogChanges(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()

	productID := testdb.SeedProduct(t, db, "lamp", 2000, 10)
	const userID = 1

	require.NoError(t, carts.AddLine(ctx, userID, productID, 2))
	ord, err := workflow.CreateOrder(ctx, userID, "1 Main St", "card")
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE products SET price = 9999 WHERE id = $1`, productID)
	require.NoError(t, err)

	got, err := workflow.GetOrderByID(ctx, userID, auth.RoleCustomer, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), got.TotalAmount)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(2000), got.Items[0].Price, "order items carry the price at order time")
}

func TestGetOrdersVisibility(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()

	productID := testdb.SeedProduct(t, db, "table", 20000, 10)
	const alice, bob = 1, 2

	require.NoError(t, carts.AddLine(ctx, alice, productID, 1))
	aliceOrder, err := workflow.CreateOrder(ctx, alice, "1 Main St", "card")
	require.NoError(t, err)

	require.NoError(t, carts.AddLine(ctx, bob, productID, 1))
	_, err = workflow.CreateOrder(ctx, bob, "2 Side St", "cash")
	require.NoError(t, err)

	own, err := workflow.GetOrders(ctx, alice, auth.RoleCustomer)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, aliceOrder.ID, own[0].ID)

	all, err := workflow.GetOrders(ctx, alice, auth.RoleSeller)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = workflow.GetOrderByID(ctx, bob, auth.RoleCustomer, aliceOrder.ID)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	got, err := workflow.GetOrderByID(ctx, bob, auth.RoleSeller, aliceOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, aliceOrder.ID, got.ID)
}

func TestGetOrderCounts(t *testing.T) {
	db, carts, workflow := newWorkflow(t)
	ctx := context.Background()

	productID := testdb.SeedProduct(t, db, "stand", 2500, 10)
	const userID = 1

	require.NoError(t, carts.AddLine(ctx, userID, productID, 1))
	ord, err := workflow.CreateOrder(ctx, userID, "1 Main St", "card")
	require.NoError(t, err)

	require.NoError(t, carts.AddLine(ctx, userID, productID, 1))
	_, err = workflow.CreateOrder(ctx, userID, "1 Main St", "card")
	require.NoError(t, err)

	require.NoError(t, workflow.CancelOrder(ctx, userID, auth.RoleCustomer, ord.ID))

	counts, err := workflow.GetOrderCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["all"])
	assert.Equal(t, 1, counts["pending"])
	assert.Equal(t, 1, counts["cancelled"])
	assert.Zero(t, counts["shipped"])
}
