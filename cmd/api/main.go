package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/catalog"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	notifsvc "github.com/angelmondragon/storefront-backend/internal/notifications"
	ordersvc "github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/internal/reconcile"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	outboxPublisher := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()))
	exitOnWiring(logg, "catalog service", err)

	cartRepo := cartsvc.NewRepository(dbClient.DB())
	cartService, err := cartsvc.NewService(cartRepo, catalogService)
	exitOnWiring(logg, "cart service", err)

	checkoutStripe := checkoutsvc.NewStripeClient(stripeClient)
	checkoutService, err := checkoutsvc.NewService(
		cartRepo,
		catalogService,
		pricing.NewCalculator(cfg.Checkout),
		checkoutStripe,
		cfg.Checkout,
	)
	exitOnWiring(logg, "checkout service", err)

	ordersRepo := ordersvc.NewRepository(dbClient.DB())
	reconcileService, err := reconcile.NewService(
		dbClient,
		checkoutStripe,
		ordersRepo,
		cartRepo,
		catalogService,
		outboxPublisher,
		logg,
	)
	exitOnWiring(logg, "reconcile service", err)

	ordersService, err := ordersvc.NewService(dbClient, ordersRepo, catalogService, outboxPublisher)
	exitOnWiring(logg, "orders service", err)

	notificationsService, err := notifsvc.NewService(notifsvc.NewRepository(dbClient.DB()))
	exitOnWiring(logg, "notifications service", err)

	webhookService, err := stripewebhook.NewService(reconcileService, logg)
	exitOnWiring(logg, "stripe webhook service", err)

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookGuardTTL, "stripe-webhook")
	exitOnWiring(logg, "stripe webhook guard", err)

	handler := routes.NewRouter(routes.Deps{
		Config: cfg,
		Logger: logg,
		HealthProbes: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		CatalogService:       catalogService,
		CartService:          cartService,
		CheckoutService:      checkoutService,
		ReconcileService:     reconcileService,
		OrdersService:        ordersService,
		NotificationsService: notificationsService,
		StripeClient:         stripeClient,
		StripeWebhookSvc:     webhookService,
		StripeWebhookGuard:   webhookGuard,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func exitOnWiring(logg *logger.Logger, component string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to wire "+component, err)
	os.Exit(1)
}
