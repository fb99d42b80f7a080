package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Payment is an append-only record of money movement against an order.
type Payment struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	Type              enums.PaymentType `gorm:"column:type;type:payment_type;not null"`
	AmountCents       int               `gorm:"column:amount_cents;not null"`
	ProviderReference string            `gorm:"column:provider_reference;not null;uniqueIndex:payments_provider_reference_key"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
}
