package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/driftlabs/storefront-backend/api/routes"
	"github.com/driftlabs/storefront-backend/internal/admin"
	"github.com/driftlabs/storefront-backend/internal/auth"
	"github.com/driftlabs/storefront-backend/internal/billing"
	"github.com/driftlabs/storefront-backend/internal/checkout"
	"github.com/driftlabs/storefront-backend/internal/media"
	"github.com/driftlabs/storefront-backend/internal/subscriptions"
	"github.com/driftlabs/storefront-backend/internal/users"
	"github.com/driftlabs/storefront-backend/internal/webhooks"
	"github.com/driftlabs/storefront-backend/pkg/auth/session"
	"github.com/driftlabs/storefront-backend/pkg/config"
	"github.com/driftlabs/storefront-backend/pkg/db"
	"github.com/driftlabs/storefront-backend/pkg/i18n"
	"github.com/driftlabs/storefront-backend/pkg/logger"
	"github.com/driftlabs/storefront-backend/pkg/metrics"
	"github.com/driftlabs/storefront-backend/pkg/migrate"
	"github.com/driftlabs/storefront-backend/pkg/redis"
	"github.com/driftlabs/storefront-backend/pkg/storage/gcs"
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	billingRepo := billing.NewRepository(dbClient.DB())
	mediaRepo := media.NewRepository(dbClient.DB())

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	provider, err := billing.NewProvider(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create billing provider", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	billingMetrics := metrics.NewBillingMetrics(registry)

	subsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              billingRepo,
		Provider:          provider,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           billingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Repo:     billingRepo,
		Users:    usersRepo,
		Provider: provider,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	guard, err := webhooks.NewIdempotencyGuard(redisClient, cfg.Billing.IdempotencyTTL, string(provider.Kind()))
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency guard", err)
		os.Exit(1)
	}

	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Provider: provider,
		Sync:     subsService,
		Guard:    guard,
		Logger:   logg,
		Metrics:  billingMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	storageClient, err := gcs.NewClient(context.Background(), cfg.Storage, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create storage client", err)
		os.Exit(1)
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing storage client", err)
		}
	}()

	mediaService, err := media.NewService(mediaRepo, storageClient, cfg.Storage, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create media service", err)
		os.Exit(1)
	}

	adminService, err := admin.NewService(admin.ServiceParams{
		Users:   usersRepo,
		Billing: billingRepo,
		Media:   mediaRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create admin service", err)
		os.Exit(1)
	}

	bundle, err := i18n.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load locale catalogs", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"provider": string(provider.Kind()),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Session:     sessionManager,
			Bundle:      bundle,
			Registry:    registry,
			AuthService: authService,
			Checkout:    checkoutService,
			Subs:        subsService,
			Webhooks:    webhookService,
			Media:       mediaService,
			Admin:       adminService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
