package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/db"
	"github.com/identitywear/storefront-backend/pkg/events"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/metrics"
	"github.com/identitywear/storefront-backend/pkg/migrate"
	"github.com/identitywear/storefront-backend/pkg/outbox"
	"github.com/identitywear/storefront-backend/pkg/outbox/registry"
)

const serviceName = "outbox-publisher"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceName})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "outbox publisher shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	publisher, err := events.New(cfg.Events)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, publisher.Close()) }()
	if !cfg.Events.Enabled() {
		logg.Warn(ctx, "no kafka brokers configured, outbox rows will be drained without delivery")
	}

	resolver, err := registry.NewEventRegistry(cfg.Events)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	relay, err := NewRelay(RelayParams{
		Outbox:    cfg.Outbox,
		Logger:    logg,
		DB:        dbClient,
		Store:     outbox.NewRepository(dbClient.DB()),
		Resolver:  resolver,
		Publisher: publisher,
		Metrics:   metrics.NewRelayMetrics(promRegistry),
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		stopMetrics := serveMetrics(ctx, logg, ":"+cfg.App.Port, cfg.Metrics.Path, promRegistry)
		defer stopMetrics()
	}

	logg.Info(ctx, "starting outbox publisher")
	return relay.Run(ctx)
}

func serveMetrics(ctx context.Context, logg *logger.Logger, addr, path string, gatherer prometheus.Gatherer) func() {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}
