package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Order is materialized only after a checkout session settles; the
// checkout_session_id unique index is how reconciliation stays exactly-once
// across concurrent triggers.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       int64               `gorm:"column:order_number;not null"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	CheckoutSessionID string              `gorm:"column:checkout_session_id;not null;uniqueIndex:orders_checkout_session_id_key"`
	Status            enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	PaymentPlan       enums.PaymentPlan   `gorm:"column:payment_plan;type:payment_plan;not null;default:'full'"`
	SubtotalCents     int                 `gorm:"column:subtotal_cents;not null"`
	DeliveryFeeCents  int                 `gorm:"column:delivery_fee_cents;not null;default:0"`
	TotalCents        int                 `gorm:"column:total_cents;not null"`
	PaidCents         int                 `gorm:"column:paid_cents;not null;default:0"`
	RemainingCents    int                 `gorm:"column:remaining_cents;not null;default:0"`
	BuyerEmail        string              `gorm:"column:buyer_email;not null"`
	ShippingAddress   types.Address       `gorm:"column:shipping_address;type:jsonb"`
	InvoiceSent       bool                `gorm:"column:invoice_sent;not null;default:false"`
	CancelledAt       *time.Time          `gorm:"column:cancelled_at"`
	Items             []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments          []Payment           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem snapshots a product line at settlement time. Name, unit price and
// image are frozen copies, not references into the live catalog.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName    string    `gorm:"column:product_name;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	ImageURL       *string   `gorm:"column:image_url"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
