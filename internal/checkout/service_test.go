package checkout

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type stubStripeClient struct {
	lastCreate *stripe.CheckoutSessionParams
	createErr  error
}

func (s *stubStripeClient) CreateSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.lastCreate = params
	return &stripe.CheckoutSession{ID: "cs_test_" + uuid.NewString()[:8], URL: "https://checkout.example/session"}, nil
}

func (s *stubStripeClient) GetSession(_ context.Context, id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return &stripe.CheckoutSession{ID: id}, nil
}

func setupCheckoutTestDB(t *testing.T) *gorm.DB {
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
CREATE TABLE IF NOT EXISTS cart_records (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'active',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`
CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  cart_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func checkoutTestConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		FreeDeliveryThresholdCents: 999,
		DeliveryFeeCents:           499,
		SuccessURL:                 "https://store.example/checkout/success",
		CancelURL:                  "https://store.example/checkout/cancel",
	}
}

func newCheckoutService(t *testing.T, db *gorm.DB, client StripeCheckoutClient) Service {
	t.Helper()
	catalogSvc, err := catalog.NewService(catalog.NewRepository(db))
	require.NoError(t, err)
	cfg := checkoutTestConfig()
	svc, err := NewService(cart.NewRepository(db), catalogSvc, pricing.NewCalculator(cfg), client, cfg)
	require.NoError(t, err)
	return svc
}

func seedCheckoutCart(t *testing.T, db *gorm.DB, userID uuid.UUID, priceCents, quantity int) models.Product {
	t.Helper()
	image := "https://cdn.example/widget.png"
	product := models.Product{
		ID:         uuid.New(),
		SKU:        "sku-" + uuid.NewString()[:8],
		Name:       "widget",
		PriceCents: priceCents,
		Stock:      50,
		IsActive:   true,
		ImageURL:   &image,
	}
	require.NoError(t, db.Create(&product).Error)

	record := models.CartRecord{ID: uuid.New(), UserID: userID, Status: enums.CartStatusActive}
	require.NoError(t, db.Create(&record).Error)
	item := models.CartItem{ID: uuid.New(), CartID: record.ID, ProductID: product.ID, Quantity: quantity}
	require.NoError(t, db.Create(&item).Error)
	return product
}

func shippingAddress() types.Address {
	return types.Address{
		Name:       "Sam Buyer",
		Line1:      "12 Main St",
		City:       "Austin",
		State:      "TX",
		PostalCode: "78701",
		Country:    "US",
	}
}

func TestIssueSessionFullPlanEmbedsIntent(t *testing.T) {
	db := setupCheckoutTestDB(t)
	client := &stubStripeClient{}
	svc := newCheckoutService(t, db, client)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New(), Email: "buyer@example.com"}
	product := seedCheckoutCart(t, db, buyer.ID, 600, 2)

	handle, err := svc.IssueSession(ctx, buyer, IssueSessionInput{
		Plan:            enums.PaymentPlanFull,
		ShippingAddress: shippingAddress(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, handle.SessionID)
	require.Equal(t, 1200, handle.AmountCents, "1200 subtotal clears the free-delivery threshold")

	params := client.lastCreate
	require.NotNil(t, params)
	require.Equal(t, "buyer@example.com", stripe.StringValue(params.CustomerEmail))
	require.Len(t, params.LineItems, 1, "free delivery adds no fee line")

	intent, err := DecodeMetadata(params.Metadata)
	require.NoError(t, err)
	require.Equal(t, buyer.ID, intent.UserID)
	require.Equal(t, enums.PaymentPlanFull, intent.Plan)
	require.Equal(t, 1200, intent.TotalCents)
	require.Equal(t, 1200, intent.PayNowCents)
	require.Equal(t, 0, intent.RemainingCents)
	require.Len(t, intent.Items, 1)
	require.Equal(t, product.ID, intent.Items[0].ProductID)
	require.Equal(t, 600, intent.Items[0].UnitPriceCents, "price comes from the catalog, not the client")
	require.NotNil(t, intent.Items[0].ImageURL)
	require.Equal(t, *product.ImageURL, *intent.Items[0].ImageURL, "the intent freezes the product image with the price")
}

func TestIssueSessionAdvancePlanChargesHalf(t *testing.T) {
	db := setupCheckoutTestDB(t)
	client := &stubStripeClient{}
	svc := newCheckoutService(t, db, client)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New(), Email: "buyer@example.com"}
	seedCheckoutCart(t, db, buyer.ID, 600, 2)

	handle, err := svc.IssueSession(ctx, buyer, IssueSessionInput{
		Plan:            enums.PaymentPlanAdvance,
		ShippingAddress: shippingAddress(),
	})
	require.NoError(t, err)
	require.Equal(t, 600, handle.AmountCents)

	params := client.lastCreate
	require.Len(t, params.LineItems, 1)
	require.EqualValues(t, 600, stripe.Int64Value(params.LineItems[0].PriceData.UnitAmount))

	intent, err := DecodeMetadata(params.Metadata)
	require.NoError(t, err)
	require.Equal(t, 600, intent.PayNowCents)
	require.Equal(t, 600, intent.RemainingCents)
}

func TestIssueSessionAddsDeliveryFeeLineBelowThreshold(t *testing.T) {
	db := setupCheckoutTestDB(t)
	client := &stubStripeClient{}
	svc := newCheckoutService(t, db, client)
	ctx := context.Background()
	buyer := Buyer{ID: uuid.New()}
	seedCheckoutCart(t, db, buyer.ID, 400, 1)

	handle, err := svc.IssueSession(ctx, buyer, IssueSessionInput{
		Plan:            enums.PaymentPlanFull,
		ShippingAddress: shippingAddress(),
	})
	require.NoError(t, err)
	require.Equal(t, 899, handle.AmountCents)
	require.Len(t, client.lastCreate.LineItems, 2)
}

func TestIssueSessionRejectsEmptyCart(t *testing.T) {
	db := setupCheckoutTestDB(t)
	svc := newCheckoutService(t, db, &stubStripeClient{})
	ctx := context.Background()

	_, err := svc.IssueSession(ctx, Buyer{ID: uuid.New()}, IssueSessionInput{
		Plan:            enums.PaymentPlanFull,
		ShippingAddress: shippingAddress(),
	})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestIssueRemainingSessionRejectsCancelledOrder(t *testing.T) {
	db := setupCheckoutTestDB(t)
	client := &stubStripeClient{}
	svc := newCheckoutService(t, db, client)
	ctx := context.Background()

	cancelled := &models.Order{
		ID:             uuid.New(),
		OrderNumber:    1001,
		Status:         enums.OrderStatusCancelled,
		PaymentStatus:  enums.PaymentStatusPartial,
		TotalCents:     1200,
		PaidCents:      600,
		RemainingCents: 600,
	}
	_, err := svc.IssueRemainingSession(ctx, cancelled)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	require.Nil(t, client.lastCreate, "no session may be issued for a cancelled order")
}

func TestIssueRemainingSessionRequiresPartialOrder(t *testing.T) {
	db := setupCheckoutTestDB(t)
	client := &stubStripeClient{}
	svc := newCheckoutService(t, db, client)
	ctx := context.Background()

	completed := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   1001,
		PaymentStatus: enums.PaymentStatusCompleted,
	}
	_, err := svc.IssueRemainingSession(ctx, completed)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	partial := &models.Order{
		ID:             uuid.New(),
		OrderNumber:    1002,
		BuyerEmail:     "buyer@example.com",
		PaymentStatus:  enums.PaymentStatusPartial,
		TotalCents:     1200,
		PaidCents:      600,
		RemainingCents: 600,
	}
	handle, err := svc.IssueRemainingSession(ctx, partial)
	require.NoError(t, err)
	require.Equal(t, 600, handle.AmountCents)

	params := client.lastCreate
	require.Equal(t, PurposeRemainingBalance, Purpose(params.Metadata))

	orderID, err := RemainingBalanceOrderID(params.Metadata)
	require.NoError(t, err)
	require.Equal(t, partial.ID, orderID)
	require.EqualValues(t, 600, stripe.Int64Value(params.LineItems[0].PriceData.UnitAmount))
}
