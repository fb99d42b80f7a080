package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderConfirmedEvent is emitted when reconciliation materializes an order.
type OrderConfirmedEvent struct {
	OrderID           uuid.UUID           `json:"order_id"`
	OrderNumber       int64               `json:"order_number"`
	UserID            uuid.UUID           `json:"user_id"`
	CheckoutSessionID string              `json:"checkout_session_id"`
	PaymentPlan       enums.PaymentPlan   `json:"payment_plan"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	TotalCents        int                 `json:"total_cents"`
	PaidCents         int                 `json:"paid_cents"`
	BuyerEmail        string              `json:"buyer_email"`
}

// OrderStatusChangedEvent is emitted for each fulfillment transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	BuyerEmail string            `json:"buyer_email"`
}

// OrderCancelledEvent is emitted when an order is cancelled and its stock
// handed back to the catalog.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
	BuyerEmail  string    `json:"buyer_email"`
}

// OrderPaymentCompletedEvent is emitted when the remaining balance settles.
type OrderPaymentCompletedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int       `json:"amount_cents"`
	PaidCents   int       `json:"paid_cents"`
	BuyerEmail  string    `json:"buyer_email"`
}

// OrderMaterializationFailedEvent flags a settled session whose order could
// not be created, usually because stock ran out between checkout and payment.
type OrderMaterializationFailedEvent struct {
	CheckoutSessionID string    `json:"checkout_session_id"`
	UserID            uuid.UUID `json:"user_id"`
	Reason            string    `json:"reason"`
	FailedAt          time.Time `json:"failed_at"`
}

// InvoiceRequestedEvent asks the notification worker to email the invoice.
type InvoiceRequestedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber int64     `json:"order_number"`
	UserID      uuid.UUID `json:"user_id"`
	BuyerEmail  string    `json:"buyer_email"`
}
