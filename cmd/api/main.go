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
	"go.uber.org/multierr"

	"github.com/stagepass/checkout-engine/api/routes"
	"github.com/stagepass/checkout-engine/internal/checkout"
	"github.com/stagepass/checkout-engine/internal/gateway"
	"github.com/stagepass/checkout-engine/internal/leads"
	"github.com/stagepass/checkout-engine/internal/track"
	"github.com/stagepass/checkout-engine/pkg/config"
	"github.com/stagepass/checkout-engine/pkg/logger"
	"github.com/stagepass/checkout-engine/pkg/metrics"
	"github.com/stagepass/checkout-engine/pkg/redis"
	pkgstripe "github.com/stagepass/checkout-engine/pkg/stripe"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "checkout-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "checkout-api",
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

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	collector := track.NewCollector(cfg.Tracking, logg)

	engine, err := checkout.NewEngine(checkout.EngineParams{
		Config:      cfg.Checkout,
		Environment: stripeClient.Environment(),
		Gateway:     gateway.NewStripeGateway(stripeClient),
		Leads:       leads.NewClient(cfg.Leads),
		Tracker:     collector,
		Logger:      logg,
		Metrics:     checkoutMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout engine", err)
		os.Exit(1)
	}

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	engine.StartJanitor(janitorCtx, time.Minute)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting checkout api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, redisClient, redisClient, engine, registry),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "checkout api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		logg.Info(logg.WithField(ctx, "signal", sig.String()), "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	stopJanitor()

	var shutdownErr error
	shutdownErr = multierr.Append(shutdownErr, server.Shutdown(shutdownCtx))
	shutdownErr = multierr.Append(shutdownErr, collector.Close(shutdownCtx))
	if shutdownErr != nil {
		logg.Error(ctx, "shutdown finished with errors", shutdownErr)
		os.Exit(1)
	}
	logg.Info(ctx, "shutdown complete")
}
