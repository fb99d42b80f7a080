package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type createCheckoutSessionRequest struct {
	Plan            string        `json:"plan" validate:"required,oneof=full advance"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
}

type checkoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	URL         string `json:"url"`
	AmountCents int    `json:"amount_cents"`
}

// CreateCheckoutSession turns the caller's cart into a hosted payment session.
// No order rows are written here; the order materializes when payment settles.
func CreateCheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createCheckoutSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := enums.ParsePaymentPlan(strings.TrimSpace(payload.Plan))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment plan"))
			return
		}

		if err := payload.ShippingAddress.Validate(); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address"))
			return
		}

		buyer := checkoutsvc.Buyer{
			ID:    userID,
			Email: middleware.EmailFromContext(r.Context()),
		}

		handle, err := svc.IssueSession(r.Context(), buyer, checkoutsvc.IssueSessionInput{
			Plan:            plan,
			ShippingAddress: payload.ShippingAddress,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutSessionResponse{
			SessionID:   handle.SessionID,
			URL:         handle.URL,
			AmountCents: handle.AmountCents,
		})
	}
}

type confirmCheckoutResponse struct {
	Order             orderResponse `json:"order"`
	AlreadyReconciled bool          `json:"already_reconciled"`
}

// ConfirmCheckoutSession is the buyer-side settlement trigger. It races the
// provider webhook; whichever runs first materializes the order and the other
// observes it.
func ConfirmCheckoutSession(svc reconcile.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "session id required"))
			return
		}

		result, err := svc.Reconcile(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Session ids are unguessable, but the settled order still only goes
		// back to the buyer who owns it.
		if result.Order != nil && result.Order.UserID != userID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		responses.WriteSuccess(w, confirmCheckoutResponse{
			Order:             newOrderResponse(result.Order),
			AlreadyReconciled: result.AlreadyReconciled,
		})
	}
}
