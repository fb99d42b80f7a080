package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const currency = "usd"

// Buyer identifies the authenticated customer issuing a session.
type Buyer struct {
	ID    uuid.UUID
	Email string
}

// IssueSessionInput captures the buyer's checkout choices.
type IssueSessionInput struct {
	Plan            enums.PaymentPlan
	ShippingAddress types.Address
}

// SessionHandle is what a buyer needs to complete payment.
type SessionHandle struct {
	SessionID   string
	URL         string
	AmountCents int
}

// Service issues Stripe Checkout sessions. Issuance writes nothing to the
// database; the order exists only as intent metadata until payment settles.
type Service interface {
	IssueSession(ctx context.Context, buyer Buyer, input IssueSessionInput) (*SessionHandle, error)
	IssueRemainingSession(ctx context.Context, order *models.Order) (*SessionHandle, error)
}

type service struct {
	cartRepo cart.Repository
	catalog  catalog.Service
	calc     *pricing.Calculator
	stripe   StripeCheckoutClient
	cfg      config.CheckoutConfig
}

// NewService builds the checkout session issuer.
func NewService(
	cartRepo cart.Repository,
	catalogSvc catalog.Service,
	calc *pricing.Calculator,
	stripeClient StripeCheckoutClient,
	cfg config.CheckoutConfig,
) (Service, error) {
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogSvc == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if calc == nil {
		return nil, fmt.Errorf("pricing calculator required")
	}
	if stripeClient == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &service{
		cartRepo: cartRepo,
		catalog:  catalogSvc,
		calc:     calc,
		stripe:   stripeClient,
		cfg:      cfg,
	}, nil
}

func (s *service) IssueSession(ctx context.Context, buyer Buyer, input IssueSessionInput) (*SessionHandle, error) {
	if buyer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Plan.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment plan")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, err
	}

	record, err := s.cartRepo.FindActiveByUser(ctx, buyer.ID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if len(record.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	requests := make([]catalog.PurchaseRequest, 0, len(record.Items))
	for _, item := range record.Items {
		requests = append(requests, catalog.PurchaseRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	resolved, err := s.catalog.ResolveForPurchase(ctx, requests)
	if err != nil {
		return nil, err
	}

	lines := make([]pricing.LineItem, 0, len(resolved))
	for _, item := range resolved {
		lines = append(lines, pricing.LineItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
		})
	}
	quote, err := s.calc.Calculate(lines, input.Plan)
	if err != nil {
		return nil, err
	}

	intent := &PendingOrderIntent{
		Version:          intentVersion,
		UserID:           buyer.ID,
		CartID:           record.ID,
		BuyerEmail:       buyer.Email,
		Plan:             quote.Plan,
		SubtotalCents:    quote.SubtotalCents,
		DeliveryFeeCents: quote.DeliveryFeeCents,
		TotalCents:       quote.TotalCents,
		PayNowCents:      quote.PayNowCents,
		RemainingCents:   quote.PayLaterCents,
		ShippingAddress:  input.ShippingAddress,
	}
	for _, item := range resolved {
		intent.Items = append(intent.Items, IntentItem{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			ImageURL:       item.ImageURL,
		})
	}

	metadata, err := EncodeMetadata(intent)
	if err != nil {
		return nil, err
	}

	params := s.baseSessionParams(buyer.Email, metadata)
	params.LineItems = buildLineItems(quote)

	created, err := s.stripe.CreateSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return &SessionHandle{
		SessionID:   created.ID,
		URL:         created.URL,
		AmountCents: quote.PayNowCents,
	}, nil
}

// IssueRemainingSession issues the second session that settles an advance
// plan's outstanding balance. The caller has already loaded the order and
// checked ownership.
func (s *service) IssueRemainingSession(ctx context.Context, order *models.Order) (*SessionHandle, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order required")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	}
	if order.PaymentStatus != enums.PaymentStatusPartial || order.RemainingCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no outstanding balance")
	}

	metadata := map[string]string{
		metadataKeyPurpose: PurposeRemainingBalance,
		metadataKeyOrderID: order.ID.String(),
	}
	params := s.baseSessionParams(order.BuyerEmail, metadata)
	params.LineItems = []*stripe.CheckoutSessionLineItemParams{
		{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Remaining balance for order #%d", order.OrderNumber)),
				},
				UnitAmount: stripe.Int64(int64(order.RemainingCents)),
			},
			Quantity: stripe.Int64(1),
		},
	}

	created, err := s.stripe.CreateSession(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create remaining-balance session")
	}
	return &SessionHandle{
		SessionID:   created.ID,
		URL:         created.URL,
		AmountCents: order.RemainingCents,
	}, nil
}

func (s *service) baseSessionParams(email string, metadata map[string]string) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.cfg.SuccessURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.cfg.CancelURL),
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}
	return params
}

// buildLineItems renders the quote for the Stripe hosted page. Full plans
// list each product plus the delivery fee; advance plans charge a single
// half-payment line so the session amount matches payNow, not the total.
func buildLineItems(quote *pricing.Quote) []*stripe.CheckoutSessionLineItemParams {
	if quote.Plan == enums.PaymentPlanAdvance {
		return []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Advance payment (half of order total)"),
					},
					UnitAmount: stripe.Int64(int64(quote.PayNowCents)),
				},
				Quantity: stripe.Int64(1),
			},
		}
	}

	items := make([]*stripe.CheckoutSessionLineItemParams, 0, len(quote.Items)+1)
	for _, line := range quote.Items {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.ProductName),
				},
				UnitAmount: stripe.Int64(int64(line.UnitPriceCents)),
			},
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
	}
	if quote.DeliveryFeeCents > 0 {
		items = append(items, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Delivery"),
				},
				UnitAmount: stripe.Int64(int64(quote.DeliveryFeeCents)),
			},
			Quantity: stripe.Int64(1),
		})
	}
	return items
}
