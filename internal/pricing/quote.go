package pricing

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// LineItem is a priced cart line. UnitPriceCents always comes from the live
// catalog, never from client input.
type LineItem struct {
	ProductID      uuid.UUID
	ProductName    string
	UnitPriceCents int
	Quantity       int
}

// Quote is the computed checkout total for a set of line items. It is
// ephemeral; the same inputs must always produce the same quote.
type Quote struct {
	Items            []LineItem
	SubtotalCents    int
	DeliveryFeeCents int
	TotalCents       int
	Plan             enums.PaymentPlan
	PayNowCents      int
	PayLaterCents    int
}

// Calculator derives quotes from catalog-priced line items.
type Calculator struct {
	freeDeliveryThresholdCents int
	deliveryFeeCents           int
}

// NewCalculator builds a calculator from the checkout pricing knobs.
func NewCalculator(cfg config.CheckoutConfig) *Calculator {
	return &Calculator{
		freeDeliveryThresholdCents: cfg.FreeDeliveryThresholdCents,
		deliveryFeeCents:           cfg.DeliveryFeeCents,
	}
}

// Calculate computes subtotal, delivery fee, total, and the plan split.
// Delivery is free only when the subtotal strictly exceeds the threshold.
// For the advance plan the buyer pays ceil(total/2) now.
func (c *Calculator) Calculate(items []LineItem, plan enums.PaymentPlan) (*Quote, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart has no items")
	}
	if !plan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment plan")
	}

	subtotal := 0
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item quantity must be positive")
		}
		if item.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item price must be non-negative")
		}
		subtotal += item.UnitPriceCents * item.Quantity
	}

	deliveryFee := c.deliveryFeeCents
	if subtotal > c.freeDeliveryThresholdCents {
		deliveryFee = 0
	}
	total := subtotal + deliveryFee

	payNow := total
	if plan == enums.PaymentPlanAdvance {
		payNow = (total + 1) / 2
	}

	return &Quote{
		Items:            items,
		SubtotalCents:    subtotal,
		DeliveryFeeCents: deliveryFee,
		TotalCents:       total,
		Plan:             plan,
		PayNowCents:      payNow,
		PayLaterCents:    total - payNow,
	}, nil
}
