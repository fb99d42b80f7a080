package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	dbpkg "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result reports what reconciliation did for one session.
type Result struct {
	Order *models.Order
	// AlreadyReconciled is the success outcome for a session that a prior
	// trigger (or a concurrent one) has already settled.
	AlreadyReconciled bool
}

// Service settles checkout sessions. Both the buyer's confirm call and the
// provider webhook funnel into the same Reconcile; any ordering or repetition
// of the two produces exactly one order.
type Service interface {
	Reconcile(ctx context.Context, sessionID string) (*Result, error)
}

type service struct {
	tx         txRunner
	stripe     checkout.StripeCheckoutClient
	ordersRepo orders.Repository
	cartRepo   cart.Repository
	catalog    catalog.Service
	outbox     outboxPublisher
	logg       *logger.Logger
}

// NewService builds the reconciliation engine.
func NewService(
	tx txRunner,
	stripeClient checkout.StripeCheckoutClient,
	ordersRepo orders.Repository,
	cartRepo cart.Repository,
	catalogSvc catalog.Service,
	publisher outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if stripeClient == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalogSvc == nil {
		return nil, fmt.Errorf("catalog service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		tx:         tx,
		stripe:     stripeClient,
		ordersRepo: ordersRepo,
		cartRepo:   cartRepo,
		catalog:    catalogSvc,
		outbox:     publisher,
		logg:       logg,
	}, nil
}

func (s *service) Reconcile(ctx context.Context, sessionID string) (*Result, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	ctx = s.logg.WithSessionID(ctx, sessionID)

	// Fast path without a provider round trip. Only order sessions land in
	// this column; remaining-balance sessions fall through to the fetch.
	if existing, err := s.ordersRepo.FindByCheckoutSessionID(ctx, sessionID); err == nil {
		s.logg.Info(ctx, "session already reconciled")
		return &Result{Order: existing, AlreadyReconciled: true}, nil
	}

	session, err := s.stripe.GetSession(ctx, sessionID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch checkout session")
	}
	if !sessionSettled(session) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not settled")
	}

	if checkout.Purpose(session.Metadata) == checkout.PurposeRemainingBalance {
		return s.settleRemaining(ctx, session)
	}
	return s.materialize(ctx, session)
}

// materialize turns a settled order session into the order, its items, the
// first payment row, the stock decrement, and the cleared cart, all in one
// transaction keyed by the checkout_session_id unique index.
func (s *service) materialize(ctx context.Context, session *stripe.CheckoutSession) (*Result, error) {
	intent, err := checkout.DecodeMetadata(session.Metadata)
	if err != nil {
		return nil, err
	}
	if session.AmountTotal > 0 && int(session.AmountTotal) != intent.PayNowCents {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "settled amount does not match the issued session")
	}

	buyerEmail := intent.BuyerEmail
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		buyerEmail = session.CustomerDetails.Email
	}

	paymentStatus := enums.PaymentStatusCompleted
	paymentType := enums.PaymentTypeFull
	if intent.Plan == enums.PaymentPlanAdvance {
		paymentStatus = enums.PaymentStatusPartial
		paymentType = enums.PaymentTypeAdvance
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.ordersRepo.WithTx(tx)

		resolved := make([]catalog.ResolvedItem, 0, len(intent.Items))
		items := make([]models.OrderItem, 0, len(intent.Items))
		for _, item := range intent.Items {
			resolved = append(resolved, catalog.ResolvedItem{
				ProductID:      item.ProductID,
				ProductName:    item.ProductName,
				UnitPriceCents: item.UnitPriceCents,
				Quantity:       item.Quantity,
				ImageURL:       item.ImageURL,
			})
			items = append(items, models.OrderItem{
				ID:             uuid.New(),
				ProductID:      item.ProductID,
				ProductName:    item.ProductName,
				UnitPriceCents: item.UnitPriceCents,
				Quantity:       item.Quantity,
				ImageURL:       item.ImageURL,
			})
		}
		if err := s.catalog.CommitStock(ctx, tx, resolved); err != nil {
			return err
		}

		number, err := ordersRepo.NextOrderNumber(ctx)
		if err != nil {
			return err
		}

		order := &models.Order{
			ID:                uuid.New(),
			OrderNumber:       number,
			UserID:            intent.UserID,
			CheckoutSessionID: session.ID,
			Status:            enums.OrderStatusPending,
			PaymentStatus:     paymentStatus,
			PaymentPlan:       intent.Plan,
			SubtotalCents:     intent.SubtotalCents,
			DeliveryFeeCents:  intent.DeliveryFeeCents,
			TotalCents:        intent.TotalCents,
			PaidCents:         intent.PayNowCents,
			RemainingCents:    intent.RemainingCents,
			BuyerEmail:        buyerEmail,
			ShippingAddress:   intent.ShippingAddress,
			Items:             items,
		}
		if _, err := ordersRepo.Create(ctx, order); err != nil {
			return err
		}

		if _, err := ordersRepo.CreatePayment(ctx, &models.Payment{
			ID:                uuid.New(),
			OrderID:           order.ID,
			Type:              paymentType,
			AmountCents:       intent.PayNowCents,
			ProviderReference: session.ID,
		}); err != nil {
			return err
		}

		if intent.CartID != uuid.Nil {
			if err := s.cartRepo.WithTx(tx).MarkConverted(ctx, intent.CartID); err != nil {
				return err
			}
		}

		created = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConfirmed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderConfirmedEvent{
				OrderID:           order.ID,
				OrderNumber:       order.OrderNumber,
				UserID:            order.UserID,
				CheckoutSessionID: order.CheckoutSessionID,
				PaymentPlan:       order.PaymentPlan,
				PaymentStatus:     order.PaymentStatus,
				TotalCents:        order.TotalCents,
				PaidCents:         order.PaidCents,
				BuyerEmail:        order.BuyerEmail,
			},
		})
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "orders_checkout_session_id_key") {
			winner, findErr := s.ordersRepo.FindByCheckoutSessionID(ctx, session.ID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load reconciled order")
			}
			s.logg.Info(ctx, "lost reconciliation race, session already settled")
			return &Result{Order: winner, AlreadyReconciled: true}, nil
		}
		s.flagMaterializationFailure(ctx, session.ID, intent.UserID, err)
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, created.ID.String()), "order materialized")
	return &Result{Order: created}, nil
}

// settleRemaining transitions a partially paid order to completed. Repeat
// deliveries are absorbed either by the status check or by the payments
// provider_reference unique index.
func (s *service) settleRemaining(ctx context.Context, session *stripe.CheckoutSession) (*Result, error) {
	orderID, err := checkout.RemainingBalanceOrderID(session.Metadata)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var settled *models.Order
	alreadySettled := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.ordersRepo.WithTx(tx)

		order, err := ordersRepo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
		}
		if order.PaymentStatus == enums.PaymentStatusCompleted {
			settled = order
			alreadySettled = true
			return nil
		}
		// Cancellation restores stock, so a cancelled order must never take
		// further money even if a stale session settles late.
		if order.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
		}
		if order.PaymentStatus != enums.PaymentStatusPartial {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting a remaining balance")
		}
		if session.AmountTotal > 0 && int(session.AmountTotal) != order.RemainingCents {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "settled amount does not match the remaining balance")
		}

		if _, err := ordersRepo.CreatePayment(ctx, &models.Payment{
			ID:                uuid.New(),
			OrderID:           order.ID,
			Type:              enums.PaymentTypeRemaining,
			AmountCents:       order.RemainingCents,
			ProviderReference: session.ID,
		}); err != nil {
			return err
		}

		if err := ordersRepo.Update(ctx, order.ID, map[string]any{
			"payment_status":  enums.PaymentStatusCompleted,
			"paid_cents":      order.TotalCents,
			"remaining_cents": 0,
		}); err != nil {
			return err
		}

		order.PaymentStatus = enums.PaymentStatusCompleted
		order.PaidCents = order.TotalCents
		order.RemainingCents = 0
		settled = order

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderPaymentCompletedEvent{
				OrderID:     order.ID,
				UserID:      order.UserID,
				AmountCents: int(session.AmountTotal),
				PaidCents:   order.TotalCents,
				BuyerEmail:  order.BuyerEmail,
			},
		})
	})
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "payments_provider_reference_key") {
			winner, findErr := s.ordersRepo.FindByID(ctx, orderID)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load settled order")
			}
			s.logg.Info(ctx, "lost settlement race, remaining balance already recorded")
			return &Result{Order: winner, AlreadyReconciled: true}, nil
		}
		return nil, err
	}

	if alreadySettled {
		s.logg.Info(ctx, "remaining balance already settled")
	} else {
		s.logg.Info(ctx, "remaining balance settled")
	}
	return &Result{Order: settled, AlreadyReconciled: alreadySettled}, nil
}

// flagMaterializationFailure records a settled session that could not become
// an order so an operator can intervene. The aggregate id is derived from the
// session id, which makes repeated failures of the same session a single
// outbox row.
func (s *service) flagMaterializationFailure(ctx context.Context, sessionID string, userID uuid.UUID, cause error) {
	s.logg.Error(ctx, "order materialization failed", cause)

	emitErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderMaterializationFailed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID)),
			Data: payloads.OrderMaterializationFailedEvent{
				CheckoutSessionID: sessionID,
				UserID:            userID,
				Reason:            cause.Error(),
				FailedAt:          time.Now().UTC(),
			},
		})
	})
	if emitErr != nil {
		s.logg.Error(ctx, "failed to flag materialization failure", emitErr)
	}
}

func sessionSettled(session *stripe.CheckoutSession) bool {
	switch session.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return true
	default:
		return false
	}
}
