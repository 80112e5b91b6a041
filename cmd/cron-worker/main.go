package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/identitywear/storefront-backend/internal/cron"
	"github.com/identitywear/storefront-backend/internal/orders"
	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/db"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/metrics"
	"github.com/identitywear/storefront-backend/pkg/migrate"
	"github.com/identitywear/storefront-backend/pkg/outbox"
	"github.com/identitywear/storefront-backend/pkg/redis"
)

const (
	serviceName   = "cron-worker"
	lockKeyFormat = "storefront:cron-worker:lock:%s"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit (for external schedulers)")
	flag.Parse()

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
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceName, "once": *once})

	if err := run(ctx, cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	promRegistry := prometheus.NewRegistry()
	service, err := buildService(cfg, logg, dbClient, redisClient, promRegistry)
	if err != nil {
		return err
	}

	if once {
		report, err := service.RunOnce(ctx)
		if err != nil {
			return err
		}
		return report.Err()
	}

	if cfg.Metrics.Enabled {
		server := &http.Server{
			Addr:              ":" + cfg.App.Port,
			Handler:           promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, server.Shutdown(shutdownCtx))
		}()
	}

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*cron.Service, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())
	orderRepo := orders.NewRepository(dbClient.DB())
	orderService, err := orders.NewService(orders.ServiceParams{
		Repository: orderRepo,
		TxRunner:   dbClient,
		Outbox:     outbox.NewService(outboxRepo, logg),
	})
	if err != nil {
		return nil, err
	}

	orderTTL, err := cron.NewOrderTTLJob(cron.OrderTTLJobParams{
		Logger:  logg,
		Pending: orderRepo,
		Orders:  orderService,
		TTL:     cfg.Cron.PendingOrderTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("order ttl job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	registry, err := cron.NewRegistry(orderTTL, retention)
	if err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
		Interval: cfg.Cron.Interval,
	})
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
