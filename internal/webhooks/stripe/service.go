package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type sessionReconciler interface {
	Reconcile(ctx context.Context, sessionID string) (*reconcile.Result, error)
}

type Service struct {
	reconciler sessionReconciler
	logg       *logger.Logger
}

func NewService(reconciler sessionReconciler, logg *logger.Logger) (*Service, error) {
	if reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	return &Service{reconciler: reconciler, logg: logg}, nil
}

// HandleEvent reconciles settled checkout sessions. Events outside the
// checkout lifecycle are acknowledged without action.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session event")
		}
		if session.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
		}
		result, err := s.reconciler.Reconcile(ctx, session.ID)
		if err != nil {
			return err
		}
		if s.logg != nil && result.AlreadyReconciled {
			s.logg.Info(ctx, fmt.Sprintf("session %s already reconciled", session.ID))
		}
		return nil
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		if s.logg != nil {
			s.logg.Info(ctx, fmt.Sprintf("checkout session event %s ignored", event.Type))
		}
		return nil
	default:
		return nil
	}
}
