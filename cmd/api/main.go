package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gigmarket/gigmarket-backend/api/controllers"
	"github.com/gigmarket/gigmarket-backend/api/routes"
	"github.com/gigmarket/gigmarket-backend/internal/auth"
	"github.com/gigmarket/gigmarket-backend/internal/autopay"
	"github.com/gigmarket/gigmarket-backend/internal/deliveries"
	"github.com/gigmarket/gigmarket-backend/internal/gigs"
	"github.com/gigmarket/gigmarket-backend/internal/ledger"
	"github.com/gigmarket/gigmarket-backend/internal/notifications"
	"github.com/gigmarket/gigmarket-backend/internal/orders"
	"github.com/gigmarket/gigmarket-backend/internal/settlement"
	"github.com/gigmarket/gigmarket-backend/internal/users"
	"github.com/gigmarket/gigmarket-backend/pkg/auth/session"
	"github.com/gigmarket/gigmarket-backend/pkg/config"
	"github.com/gigmarket/gigmarket-backend/pkg/db"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/gigmarket/gigmarket-backend/pkg/instance"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/metrics"
	"github.com/gigmarket/gigmarket-backend/pkg/migrate"
	"github.com/gigmarket/gigmarket-backend/pkg/pubsub"
	"github.com/gigmarket/gigmarket-backend/pkg/redis"
	"github.com/gigmarket/gigmarket-backend/pkg/storage/supabase"
)

const shutdownTimeout = 15 * time.Second

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

	blobs, err := supabase.NewClient(ctx, cfg.Storage, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap storage", err)
		os.Exit(1)
	}

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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	conn := dbClient.DB()
	userRepo := users.NewRepository(conn)
	gigRepo := gigs.NewRepository(conn)
	orderRepo := orders.NewRepository(conn)
	ledgerRepo := ledger.NewRepository(conn)
	notificationRepo := notifications.NewRepository(conn)

	sink, err := notifications.NewSink(notificationRepo, publish, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification sink", err)
		os.Exit(1)
	}

	// The scheduler and settlement reference each other; the fire callback
	// resolves settler lazily.
	var settler *settlement.Service
	var scheduler *autopay.Scheduler
	if cfg.FeatureFlags.InProcessTimers {
		scheduler, err = autopay.NewScheduler(autopay.SchedulerParams{
			Fire: func(ctx context.Context, orderID uuid.UUID) error {
				_, err := settler.Settle(ctx, settlement.Request{OrderID: orderID, Trigger: enums.SettlementTriggerTimer})
				return err
			},
			Logger:  logg,
			Metrics: settlementMetrics,
		})
		if err != nil {
			logg.Error(ctx, "failed to create auto-payment scheduler", err)
			os.Exit(1)
		}
	}

	settlementParams := settlement.ServiceParams{
		DB:       dbClient,
		Ledger:   ledgerRepo,
		Notifier: sink,
		Metrics:  settlementMetrics,
		Logger:   logg,
	}
	ordersParams := orders.ServiceParams{
		Repo:                     orderRepo,
		Gigs:                     gigRepo,
		Users:                    userRepo,
		Notifier:                 sink,
		Logger:                   logg,
		DefaultResponseTimeHours: cfg.Orders.DefaultResponseTimeHours,
	}
	if scheduler != nil {
		settlementParams.Timers = scheduler
		ordersParams.Timers = scheduler
	}

	settler, err = settlement.NewService(settlementParams)
	if err != nil {
		logg.Error(ctx, "failed to create settlement service", err)
		os.Exit(1)
	}
	ordersParams.Settler = settler

	orderService, err := orders.NewService(ordersParams)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	deliveryService, err := deliveries.NewService(deliveries.ServiceParams{
		Repo:         deliveries.NewRepository(conn),
		Orders:       orderService,
		Blobs:        blobs,
		Tx:           dbClient,
		Logger:       logg,
		MaxFileBytes: cfg.Storage.MaxUploadBytes(),
		MaxFiles:     cfg.Storage.MaxFilesPerUpload,
		URLExpiry:    cfg.Storage.DownloadURLExpiry,
	})
	if err != nil {
		logg.Error(ctx, "failed to create deliveries service", err)
		os.Exit(1)
	}

	gigService, err := gigs.NewService(gigRepo, cfg.Orders.DefaultResponseTimeHours)
	if err != nil {
		logg.Error(ctx, "failed to create gigs service", err)
		os.Exit(1)
	}
	ledgerService, err := ledger.NewService(ledgerRepo, dbClient)
	if err != nil {
		logg.Error(ctx, "failed to create ledger service", err)
		os.Exit(1)
	}
	notificationService, err := notifications.NewService(notificationRepo)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	if scheduler != nil {
		restored, err := scheduler.Restore(ctx, orderRepo)
		if err != nil {
			// The periodic sweep still settles these orders.
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "failed to restore auto-payment timers")
		} else {
			logg.Info(logg.WithField(ctx, "timers", restored), "auto-payment timers restored")
		}
		defer scheduler.Stop()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.RouterParams{
			Config: cfg,
			Logger: logg,
			Readiness: map[string]controllers.Pinger{
				"db":      dbClient,
				"redis":   redisClient,
				"storage": blobs,
			},
			Redis:         redisClient,
			Sessions:      sessionManager,
			Gatherer:      registry,
			Auth:          authService,
			Gigs:          gigService,
			Orders:        orderService,
			Deliveries:    deliveryService,
			Ledger:        ledgerService,
			Notifications: notificationService,
		}),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server stopped")
	}
}
