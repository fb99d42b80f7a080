package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	notifsvc "github.com/angelmondragon/storefront-backend/internal/notifications"
	ordersvc "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	HealthProbes map[string]controllers.Pinger

	CatalogService       catalog.Service
	CartService          cartsvc.Service
	CheckoutService      checkoutsvc.Service
	ReconcileService     reconcile.Service
	OrdersService        ordersvc.Service
	NotificationsService notifsvc.Service

	StripeClient       *stripe.Client
	StripeWebhookSvc   *stripewebhook.Service
	StripeWebhookGuard *stripewebhook.IdempotencyGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.HealthProbes))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Webhook and catalog reads carry no bearer token.
		r.Post("/payment-webhook", webhookcontrollers.StripeWebhook(deps.StripeWebhookSvc, deps.StripeClient, deps.StripeWebhookGuard, logg))
		r.Get("/products", controllers.ListProducts(deps.CatalogService, logg))
		r.Get("/products/{productId}", controllers.GetProduct(deps.CatalogService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", controllers.GetCart(deps.CartService, logg))
				r.Post("/items", controllers.SetCartItem(deps.CartService, logg))
				r.Delete("/items/{productId}", controllers.RemoveCartItem(deps.CartService, logg))
			})

			r.Post("/checkout-sessions", controllers.CreateCheckoutSession(deps.CheckoutService, logg))
			r.Post("/checkout-sessions/{sessionId}/confirm", controllers.ConfirmCheckoutSession(deps.ReconcileService, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.ListOrders(deps.OrdersService, logg))
				r.Get("/{orderId}", controllers.GetOrder(deps.OrdersService, logg))
				r.Post("/{orderId}/remaining-payment", controllers.CreateRemainingPayment(deps.OrdersService, deps.CheckoutService, logg))
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(deps.NotificationsService, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.NotificationsService, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.NotificationsService, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminListOrders(deps.OrdersService, logg))
			r.Get("/{orderId}", controllers.GetOrder(deps.OrdersService, logg))
			r.Put("/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.OrdersService, logg))
			r.Put("/{orderId}/cancel", controllers.AdminCancelOrder(deps.OrdersService, logg))
			r.Post("/{orderId}/invoice", controllers.AdminRequestInvoice(deps.OrdersService, logg))
		})
	})

	return r
}
