package models

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a storefront catalog listing.
type Product struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU           string    `gorm:"column:sku;not null"`
	Name          string    `gorm:"column:name;not null"`
	Description   *string   `gorm:"column:description"`
	Category      *string   `gorm:"column:category"`
	ImageURL      *string   `gorm:"column:image_url"`
	PriceCents    int       `gorm:"column:price_cents;not null"`
	Stock         int       `gorm:"column:stock;not null;default:0"`
	PurchaseCount int       `gorm:"column:purchase_count;not null;default:0"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
