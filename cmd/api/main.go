package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/adega-digital/vinicola-backend/api/routes"
	"github.com/adega-digital/vinicola-backend/internal/checkout"
	"github.com/adega-digital/vinicola-backend/internal/coupons"
	"github.com/adega-digital/vinicola-backend/internal/lgpd"
	"github.com/adega-digital/vinicola-backend/internal/orders"
	"github.com/adega-digital/vinicola-backend/internal/products"
	"github.com/adega-digital/vinicola-backend/internal/reconcile"
	"github.com/adega-digital/vinicola-backend/internal/shipping"
	"github.com/adega-digital/vinicola-backend/pkg/config"
	"github.com/adega-digital/vinicola-backend/pkg/logger"
	"github.com/adega-digital/vinicola-backend/pkg/melhorenvio"
	"github.com/adega-digital/vinicola-backend/pkg/mercadopago"
	"github.com/adega-digital/vinicola-backend/pkg/metrics"
	"github.com/adega-digital/vinicola-backend/pkg/nuvemshop"
	"github.com/adega-digital/vinicola-backend/pkg/redis"
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

	tokens, err := nuvemshop.NewTokenManager(redisClient, cfg.Nuvemshop)
	if err != nil {
		logg.Error(context.Background(), "failed to create token manager", err)
		os.Exit(1)
	}

	storefront, err := nuvemshop.NewClient(cfg.Nuvemshop, tokens)
	if err != nil {
		logg.Error(context.Background(), "failed to create storefront client", err)
		os.Exit(1)
	}

	gateway, err := mercadopago.NewClient(cfg.MercadoPago)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	var rates checkout.RateSelector
	var shippingService *shipping.Service
	if cfg.MelhorEnvio.Token != "" {
		oracle, err := melhorenvio.NewClient(cfg.MelhorEnvio)
		if err != nil {
			logg.Error(context.Background(), "failed to create shipping client", err)
			os.Exit(1)
		}
		strategy, err := shipping.StrategyFromConfig(cfg.Shipping)
		if err != nil {
			logg.Error(context.Background(), "invalid shipping strategy", err)
			os.Exit(1)
		}
		shippingService = shipping.NewService(oracle, strategy, logg)
		rates = shippingService
	} else {
		logg.Warn(context.Background(), "shipping aggregator token missing, quotes disabled")
	}

	checkoutService := checkout.NewService(storefront, gateway, rates, checkout.Config{
		FrontURL:         cfg.App.FrontURL,
		BackURL:          cfg.App.BackURL,
		ProdPayer:        cfg.MercadoPago.IsProd(),
		ShippingRequired: cfg.Shipping.Required,
	}, logg, checkoutMetrics)

	guard := reconcile.NewRedisGuard(redisClient, cfg.Webhook.DedupTTL)
	reconcileService := reconcile.NewService(gateway, storefront, guard, logg, webhookMetrics)

	svcs := routes.Services{
		Checkout:  checkoutService,
		Reconcile: reconcileService,
		LGPD:      lgpd.NewService(cfg.Nuvemshop.ClientSecret, logg),
		Products:  products.NewService(storefront, logg),
		Orders:    orders.NewService(storefront),
		Coupons:   coupons.NewService(storefront),
	}
	if shippingService != nil {
		svcs.Shipping = shippingService
	}

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
		Handler: routes.NewRouter(cfg, logg, redisClient, registry, svcs),
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutdown signal received")
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server stopped")
}
