package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fakturo/fakturo/internal/app"
	"github.com/fakturo/fakturo/internal/billing"
	"github.com/fakturo/fakturo/internal/observability"
	"github.com/fakturo/fakturo/internal/platform/cache"
	"github.com/fakturo/fakturo/internal/platform/db"
	"github.com/fakturo/fakturo/internal/pricelist"
	"github.com/fakturo/fakturo/internal/rating"
	"github.com/fakturo/fakturo/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Pricing works without the cache, every lookup just hits postgres.
		logger.Warn("redis unavailable, price cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	defaultPrice, err := decimal.NewFromString(cfg.DefaultUnitPrice)
	if err != nil {
		logger.Error("parse default unit price", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	authorizer := shared.NewACLAuthorizer(cfg.AccessList, cfg.SupplierAccessList)

	priceCache := pricelist.NewCache(redisClient, cfg.PriceCacheTTL)
	priceRepo := pricelist.NewRepository(pool)
	priceService := pricelist.NewService(priceRepo, priceCache)
	priceHandler := pricelist.NewHandler(logger, priceService)

	ratingService := rating.NewService(priceService, defaultPrice)

	billingRepo := billing.NewRepository(pool)
	billingService := billing.NewService(logger, billingRepo, ratingService, authorizer, metrics)
	billingHandler := billing.NewHandler(logger, billingService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		BillingHandler:   billingHandler,
		PriceListHandler: priceHandler,
		Pool:             pool,
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
