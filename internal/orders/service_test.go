package orders

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  sku TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  category TEXT,
  image_url TEXT,
  price_cents INTEGER NOT NULL,
  stock INTEGER NOT NULL DEFAULT 0,
  purchase_count INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL,
  user_id TEXT NOT NULL,
  checkout_session_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  payment_plan TEXT NOT NULL DEFAULT 'full',
  subtotal_cents INTEGER NOT NULL,
  delivery_fee_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  paid_cents INTEGER NOT NULL DEFAULT 0,
  remaining_cents INTEGER NOT NULL DEFAULT 0,
  buyer_email TEXT NOT NULL,
  shipping_address TEXT,
  invoice_sent INTEGER NOT NULL DEFAULT 0,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT orders_checkout_session_id_key UNIQUE (checkout_session_id)
);`,
		`
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  quantity INTEGER NOT NULL,
  image_url TEXT,
  created_at DATETIME
);`,
		`
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  provider_reference TEXT NOT NULL,
  created_at DATETIME,
  CONSTRAINT payments_provider_reference_key UNIQUE (provider_reference)
);`,
		`
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func newOrdersService(t *testing.T, db *gorm.DB) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	catalogSvc, err := catalog.NewService(catalog.NewRepository(db))
	require.NoError(t, err)
	publisher := outbox.NewService(outbox.NewRepository(db), logg)
	svc, err := NewService(dbpkg.NewFromConn(db), NewRepository(db), catalogSvc, publisher)
	require.NoError(t, err)
	return svc
}

func adminActor() Actor {
	return Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
}

func seedOrder(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:                uuid.New(),
		OrderNumber:       1000,
		UserID:            userID,
		CheckoutSessionID: "cs_" + uuid.NewString()[:8],
		Status:            status,
		PaymentStatus:     enums.PaymentStatusCompleted,
		PaymentPlan:       enums.PaymentPlanFull,
		SubtotalCents:     1200,
		TotalCents:        1200,
		PaidCents:         1200,
		BuyerEmail:        "buyer@example.com",
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func seedOrderWithStock(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.OrderStatus, quantity int) (*models.Order, models.Product) {
	t.Helper()
	product := models.Product{
		ID:            uuid.New(),
		SKU:           "sku-" + uuid.NewString()[:8],
		Name:          "widget",
		PriceCents:    600,
		Stock:         8,
		PurchaseCount: quantity,
		IsActive:      true,
	}
	require.NoError(t, db.Create(&product).Error)

	order := seedOrder(t, db, userID, status)
	item := models.OrderItem{
		ID:             uuid.New(),
		OrderID:        order.ID,
		ProductID:      product.ID,
		ProductName:    product.Name,
		UnitPriceCents: product.PriceCents,
		Quantity:       quantity,
	}
	require.NoError(t, db.Create(&item).Error)
	order.Items = []models.OrderItem{item}
	return order, product
}

func countEvents(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestUpdateStatusWalksForwardPath(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrdersService(t, db)
	ctx := context.Background()
	admin := adminActor()
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusPending)

	for _, to := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusShipped,
		enums.OrderStatusDelivered,
	} {
		updated, err := svc.UpdateStatus(ctx, admin, order.ID, to)
		require.NoError(t, err)
		require.Equal(t, to, updated.Status)
	}
	require.EqualValues(t, 3, countEvents(t, db, enums.EventOrderStatusChanged))
}

func TestUpdateStatusRejectsInvalidMoves(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrdersService(t, db)
	ctx := context.Background()
	admin := adminActor()

	pending := seedOrder(t, db, uuid.New(), enums.OrderStatusPending)
	_, err := svc.UpdateStatus(ctx, admin, pending.ID, enums.OrderStatusDelivered)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	delivered := seedOrder(t, db, uuid.New(), enums.OrderStatusDelivered)
	_, err = svc.UpdateStatus(ctx, admin, delivered.ID, enums.OrderStatusConfirmed)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	_, err = svc.UpdateStatus(ctx, admin, pending.ID, enums.OrderStatusCancelled)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	buyer := Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
	_, err = svc.UpdateStatus(ctx, buyer, pending.ID, enums.OrderStatusConfirmed)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	require.EqualValues(t, 0, countEvents(t, db, enums.EventOrderStatusChanged))
}

func TestCancelRestoresStockExactlyOnce(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrdersService(t, db)
	ctx := context.Background()
	admin := adminActor()
	order, product := seedOrderWithStock(t, db, uuid.New(), enums.OrderStatusConfirmed, 2)

	cancelled, err := svc.Cancel(ctx, admin, order.ID, "buyer requested")
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	var stocked models.Product
	require.NoError(t, db.First(&stocked, "id = ?", product.ID).Error)
	require.Equal(t, 10, stocked.Stock)
	require.Equal(t, 0, stocked.PurchaseCount)
	require.EqualValues(t, 1, countEvents(t, db, enums.EventOrderCancelled))

	_, err = svc.Cancel(ctx, admin, order.ID, "again")
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	require.NoError(t, db.First(&stocked, "id = ?", product.ID).Error)
	require.Equal(t, 10, stocked.Stock, "double cancel must not restore twice")
	require.EqualValues(t, 1, countEvents(t, db, enums.EventOrderCancelled))
}

func TestCancelRejectsDeliveredOrders(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrdersService(t, db)
	ctx := context.Background()
	order, product := seedOrderWithStock(t, db, uuid.New(), enums.OrderStatusDelivered, 2)

	_, err := svc.Cancel(ctx, adminActor(), order.ID, "too late")
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	var stocked models.Product
	require.NoError(t, db.First(&stocked, "id = ?", product.ID).Error)
	require.Equal(t, 8, stocked.Stock)
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrdersService(t, db)
	ctx := context.Background()
	ownerID := uuid.New()
	order := seedOrder(t, db, ownerID, enums.OrderStatusConfirmed)

	loaded, err := svc.GetOrder(ctx, Actor{UserID: ownerID, Role: enums.UserRoleCustomer}, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, loaded.ID)

	_, err = svc.GetOrder(ctx, Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}, order.ID)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	_, err = svc.GetOrder(ctx, adminActor(), order.ID)
	require.NoError(t, err)

	unsettled := seedOrder(t, db, ownerID, enums.OrderStatusPendingPayment)
	_, err = svc.GetOrder(ctx, Actor{UserID: ownerID, Role: enums.UserRoleCustomer}, unsettled.ID)
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code(), "unsettled orders are invisible to buyers")
}

func TestListOrdersHidesUnsettledFromBuyers(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrdersService(t, db)
	ctx := context.Background()
	ownerID := uuid.New()
	seedOrder(t, db, ownerID, enums.OrderStatusConfirmed)
	seedOrder(t, db, ownerID, enums.OrderStatusPendingPayment)
	seedOrder(t, db, uuid.New(), enums.OrderStatusPending)

	params := pagination.Params{Limit: 10}
	list, total, err := svc.ListOrders(ctx, Actor{UserID: ownerID, Role: enums.UserRoleCustomer}, params, ListFilters{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, list, 1)

	_, total, err = svc.ListOrders(ctx, adminActor(), params, ListFilters{})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
}

func TestRequestInvoiceSendsOnce(t *testing.T) {
	db := setupOrdersTestDB(t)
	svc := newOrdersService(t, db)
	ctx := context.Background()
	admin := adminActor()
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusDelivered)

	require.NoError(t, svc.RequestInvoice(ctx, admin, order.ID))
	require.EqualValues(t, 1, countEvents(t, db, enums.EventInvoiceRequested))

	var flagged models.Order
	require.NoError(t, db.First(&flagged, "id = ?", order.ID).Error)
	require.True(t, flagged.InvoiceSent)

	// Repeat request is a clean success without a second email.
	require.NoError(t, svc.RequestInvoice(ctx, admin, order.ID))
	require.EqualValues(t, 1, countEvents(t, db, enums.EventInvoiceRequested))
}

func TestNextOrderNumberIsMonotonic(t *testing.T) {
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	first, err := repo.NextOrderNumber(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1000, first)

	seedOrder(t, db, uuid.New(), enums.OrderStatusPending)
	var bumped int64 = 1376
	require.NoError(t, db.Model(&models.Order{}).Where("1 = 1").Update("order_number", bumped).Error)

	next, err := repo.NextOrderNumber(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1377, next)
}
