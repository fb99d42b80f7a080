package notifications

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/mailer"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type stubSender struct {
	sent []mailer.Message
	err  error
}

func (s *stubSender) Send(_ context.Context, msg mailer.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func setupNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  order_id TEXT,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  read_at DATETIME,
  created_at DATETIME
);
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  name TEXT,
  role TEXT NOT NULL DEFAULT 'customer',
  created_at DATETIME,
  updated_at DATETIME
);`
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
}

func TestDispatcherWritesRowAndSendsEmail(t *testing.T) {
	db := setupNotificationsTestDB(t)
	sender := &stubSender{}
	dispatcher, err := NewDispatcher(NewRepository(db), sender, testLogger())
	require.NoError(t, err)

	userID := uuid.New()
	orderID := uuid.New()
	err = dispatcher.OrderConfirmed(context.Background(), payloads.OrderConfirmedEvent{
		OrderID:       orderID,
		OrderNumber:   1001,
		UserID:        userID,
		PaymentStatus: enums.PaymentStatusPartial,
		TotalCents:    1200,
		PaidCents:     600,
		BuyerEmail:    "buyer@example.com",
	})
	require.NoError(t, err)

	var row models.Notification
	require.NoError(t, db.First(&row, "user_id = ?", userID).Error)
	require.Equal(t, enums.NotificationTypeOrderConfirmation, row.Type)
	require.Contains(t, row.Message, "#1001")
	require.Contains(t, row.Message, "$6.00 remains due")

	require.Len(t, sender.sent, 1)
	require.Equal(t, "buyer@example.com", sender.sent[0].ToEmail)
	require.Equal(t, "Order confirmed", sender.sent[0].Subject)
}

func TestDispatcherSwallowsEmailFailure(t *testing.T) {
	db := setupNotificationsTestDB(t)
	sender := &stubSender{err: fmt.Errorf("smtp down")}
	dispatcher, err := NewDispatcher(NewRepository(db), sender, testLogger())
	require.NoError(t, err)

	userID := uuid.New()
	orderID := uuid.New()
	err = dispatcher.OrderStatusChanged(context.Background(), payloads.OrderStatusChangedEvent{
		OrderID:    orderID,
		UserID:     userID,
		FromStatus: enums.OrderStatusPending,
		ToStatus:   enums.OrderStatusShipped,
		BuyerEmail: "buyer@example.com",
	})
	require.NoError(t, err, "a failed email must not fail the dispatch")

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", userID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestDispatcherSkipsEmailWithoutRecipient(t *testing.T) {
	db := setupNotificationsTestDB(t)
	sender := &stubSender{}
	dispatcher, err := NewDispatcher(NewRepository(db), sender, testLogger())
	require.NoError(t, err)

	orderID := uuid.New()
	err = dispatcher.OrderCancelled(context.Background(), payloads.OrderCancelledEvent{
		OrderID: orderID,
		UserID:  uuid.New(),
		Reason:  "out of stock",
	})
	require.NoError(t, err)
	require.Empty(t, sender.sent)
}

func TestDispatcherFallsBackToAccountEmail(t *testing.T) {
	db := setupNotificationsTestDB(t)
	sender := &stubSender{}
	dispatcher, err := NewDispatcher(NewRepository(db), sender, testLogger())
	require.NoError(t, err)

	userID := uuid.New()
	require.NoError(t, db.Create(&models.User{
		ID:    userID,
		Email: "account@example.com",
		Role:  enums.UserRoleCustomer,
	}).Error)

	err = dispatcher.PaymentCompleted(context.Background(), payloads.OrderPaymentCompletedEvent{
		OrderID:     uuid.New(),
		UserID:      userID,
		AmountCents: 600,
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	require.Equal(t, "account@example.com", sender.sent[0].ToEmail)
}
