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

	"github.com/gigmarket/gigmarket-backend/internal/cron"
	"github.com/gigmarket/gigmarket-backend/internal/ledger"
	"github.com/gigmarket/gigmarket-backend/internal/notifications"
	"github.com/gigmarket/gigmarket-backend/internal/orders"
	"github.com/gigmarket/gigmarket-backend/internal/settlement"
	"github.com/gigmarket/gigmarket-backend/pkg/config"
	"github.com/gigmarket/gigmarket-backend/pkg/db"
	"github.com/gigmarket/gigmarket-backend/pkg/instance"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/metrics"
	"github.com/gigmarket/gigmarket-backend/pkg/migrate"
	"github.com/gigmarket/gigmarket-backend/pkg/pubsub"
	"github.com/gigmarket/gigmarket-backend/pkg/redis"
)

const lockName = "auto_payment_sweep"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var publish notifications.PublishFunc
	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publish = notifications.PublisherFunc(psClient.NotificationPublisher(), logg)
	}

	registry := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(registry)
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	conn := dbClient.DB()
	notificationRepo := notifications.NewRepository(conn)
	sink, err := notifications.NewSink(notificationRepo, publish, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification sink", err)
		os.Exit(1)
	}

	// No in-process timers here; an API replica holding one cancels its own.
	settler, err := settlement.NewService(settlement.ServiceParams{
		DB:       dbClient,
		Ledger:   ledger.NewRepository(conn),
		Notifier: sink,
		Metrics:  settlementMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create settlement service", err)
		os.Exit(1)
	}

	sweep, err := cron.NewAutoPaymentSweepJob(cron.AutoPaymentSweepJobParams{
		Logger:    logg,
		Orders:    orders.NewRepository(conn),
		Settler:   settler,
		BatchSize: cfg.Orders.SweepBatchSize,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auto-payment sweep job", err)
		os.Exit(1)
	}
	cleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notificationRepo,
		Retention:  cfg.Cron.NotificationRetentionDays,
	})
	if err != nil {
		logg.Error(ctx, "failed to create notification cleanup job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cfg.Service.Kind, lockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweep, cleanup),
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"interval":    cfg.Cron.Interval.String(),
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics endpoint stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
