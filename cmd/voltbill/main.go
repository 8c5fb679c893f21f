package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/voltbill/voltbill/internal/app"
	"github.com/voltbill/voltbill/internal/audit"
	"github.com/voltbill/voltbill/internal/auth"
	"github.com/voltbill/voltbill/internal/customers"
	"github.com/voltbill/voltbill/internal/invoices"
	"github.com/voltbill/voltbill/internal/observability"
	"github.com/voltbill/voltbill/internal/offers"
	"github.com/voltbill/voltbill/internal/platform/cache"
	"github.com/voltbill/voltbill/internal/platform/db"
	"github.com/voltbill/voltbill/internal/platform/objstore"
	"github.com/voltbill/voltbill/internal/security"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	// Optional .env for local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Redis only backs rate limiting and intake dedup; start anyway.
		logger.Warn("redis unavailable", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := objstore.NewClient(cfg.StorageURL, cfg.StorageServiceKey)
	auditor := audit.NewLogger(dbpool, logger)
	metrics := observability.NewMetrics()

	verifier := auth.NewVerifier(cfg.AuthJWTSecret, cfg.AdminEmailList())
	limiter := security.NewRateLimiter(redisClient, cfg.PublicIntakeLimit, cfg.PublicIntakeWindow)
	captcha := security.NewCaptchaVerifier(cfg.CaptchaSecret, cfg.CaptchaBypass)

	customerRepo := customers.NewRepository(dbpool)
	invoiceRepo := invoices.NewRepository(dbpool)
	offerRepo := offers.NewRepository(dbpool)

	dashboardService := invoices.NewDashboardService(invoiceRepo)
	exportService := invoices.NewExportService(invoiceRepo)
	intakeService := invoices.NewIntakeService(invoiceRepo, customerRepo, store, auditor, cfg.InvoiceBucket)

	invoiceHandler := invoices.NewHandler(
		logger,
		dashboardService,
		exportService,
		intakeService,
		invoiceRepo,
		offerRepo,
		limiter,
		captcha,
		redisClient,
		metrics,
		cfg.PublicOriginList(),
	)

	offerService := offers.NewService(logger, offerRepo, invoiceRepo, store, auditor, cfg.OfferBucket)
	offersHandler := offers.NewHandler(logger, offerService)

	customersHandler := customers.NewHandler(logger, customerRepo)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Verifier:         verifier,
		InvoiceHandler:   invoiceHandler,
		OffersHandler:    offersHandler,
		CustomersHandler: customersHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
