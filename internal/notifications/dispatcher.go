package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/mailer"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Dispatcher fans a domain event out to the buyer: an in-app notification row
// plus a transactional email. The row is the durable part; a failed email is
// logged and dropped, it never fails the dispatch.
type Dispatcher struct {
	repo   Repository
	mailer mailer.Sender
	logg   *logger.Logger
}

// NewDispatcher builds the notification dispatcher.
func NewDispatcher(repo Repository, sender mailer.Sender, logg *logger.Logger) (*Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{repo: repo, mailer: sender, logg: logg}, nil
}

func (d *Dispatcher) OrderConfirmed(ctx context.Context, event payloads.OrderConfirmedEvent) error {
	title := "Order confirmed"
	message := fmt.Sprintf("Your order #%d is confirmed. We received $%.2f.", event.OrderNumber, cents(event.PaidCents))
	if event.PaymentStatus == enums.PaymentStatusPartial {
		remaining := event.TotalCents - event.PaidCents
		message = fmt.Sprintf(
			"Your order #%d is confirmed. We received $%.2f; $%.2f remains due before delivery.",
			event.OrderNumber, cents(event.PaidCents), cents(remaining))
	}
	return d.dispatch(ctx, record{
		UserID:  event.UserID,
		OrderID: &event.OrderID,
		Type:    enums.NotificationTypeOrderConfirmation,
		Title:   title,
		Message: message,
		Email:   event.BuyerEmail,
	})
}

func (d *Dispatcher) OrderStatusChanged(ctx context.Context, event payloads.OrderStatusChangedEvent) error {
	return d.dispatch(ctx, record{
		UserID:  event.UserID,
		OrderID: &event.OrderID,
		Type:    enums.NotificationTypeOrderStatus,
		Title:   "Order update",
		Message: fmt.Sprintf("Your order is now %s.", event.ToStatus),
		Email:   event.BuyerEmail,
	})
}

func (d *Dispatcher) OrderCancelled(ctx context.Context, event payloads.OrderCancelledEvent) error {
	message := "Your order was cancelled."
	if event.Reason != "" {
		message = fmt.Sprintf("Your order was cancelled: %s.", event.Reason)
	}
	return d.dispatch(ctx, record{
		UserID:  event.UserID,
		OrderID: &event.OrderID,
		Type:    enums.NotificationTypeOrderStatus,
		Title:   "Order cancelled",
		Message: message,
		Email:   event.BuyerEmail,
	})
}

func (d *Dispatcher) PaymentCompleted(ctx context.Context, event payloads.OrderPaymentCompletedEvent) error {
	return d.dispatch(ctx, record{
		UserID:  event.UserID,
		OrderID: &event.OrderID,
		Type:    enums.NotificationTypePaymentReceived,
		Title:   "Payment received",
		Message: fmt.Sprintf("We received your remaining payment of $%.2f. Your order is fully paid.", cents(event.AmountCents)),
		Email:   event.BuyerEmail,
	})
}

func (d *Dispatcher) InvoiceRequested(ctx context.Context, event payloads.InvoiceRequestedEvent) error {
	return d.dispatch(ctx, record{
		UserID:  event.UserID,
		OrderID: &event.OrderID,
		Type:    enums.NotificationTypeInvoice,
		Title:   "Invoice",
		Message: fmt.Sprintf("The invoice for order #%d has been sent to your email.", event.OrderNumber),
		Email:   event.BuyerEmail,
	})
}

type record struct {
	UserID  uuid.UUID
	OrderID *uuid.UUID
	Type    enums.NotificationType
	Title   string
	Message string
	Email   string
}

func (d *Dispatcher) dispatch(ctx context.Context, rec record) error {
	if rec.UserID == uuid.Nil {
		return fmt.Errorf("user id missing")
	}

	notification := &models.Notification{
		ID:      uuid.New(),
		UserID:  rec.UserID,
		OrderID: rec.OrderID,
		Type:    rec.Type,
		Title:   rec.Title,
		Message: rec.Message,
	}
	if err := d.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	if d.mailer == nil {
		return nil
	}
	// Events emitted before the buyer email was known fall back to the
	// account record.
	email := rec.Email
	if email == "" {
		stored, err := d.repo.FindUserEmail(ctx, rec.UserID)
		if err != nil {
			d.logg.Error(ctx, "resolve notification email failed", err)
			return nil
		}
		email = stored
	}
	if email == "" {
		return nil
	}
	err := d.mailer.Send(ctx, mailer.Message{
		ToEmail:          email,
		Subject:          rec.Title,
		PlainTextContent: rec.Message,
	})
	if err != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"user_id":           rec.UserID.String(),
			"notification_type": rec.Type,
		})
		d.logg.Error(logCtx, "notification email failed", err)
	}
	return nil
}

func cents(amount int) float64 {
	return float64(amount) / 100
}
