package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gigmarket/gigmarket-backend/api/controllers"
	ordercontrollers "github.com/gigmarket/gigmarket-backend/api/controllers/orders"
	"github.com/gigmarket/gigmarket-backend/api/middleware"
	"github.com/gigmarket/gigmarket-backend/internal/auth"
	"github.com/gigmarket/gigmarket-backend/internal/deliveries"
	"github.com/gigmarket/gigmarket-backend/internal/ledger"
	"github.com/gigmarket/gigmarket-backend/internal/notifications"
	"github.com/gigmarket/gigmarket-backend/internal/orders"
	"github.com/gigmarket/gigmarket-backend/pkg/auth/session"
	"github.com/gigmarket/gigmarket-backend/pkg/config"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	pkgredis "github.com/gigmarket/gigmarket-backend/pkg/redis"
)

// redisStore is the slice of the Redis client the middleware chain needs.
type redisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

// RouterParams carries every dependency the HTTP surface is built from.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	Readiness     map[string]controllers.Pinger
	Redis         redisStore
	Sessions      session.AccessSessionChecker
	Gatherer      prometheus.Gatherer
	Auth          auth.Service
	Gigs          controllers.GigService
	Orders        orders.Service
	Deliveries    deliveries.Service
	Ledger        ledger.Service
	Notifications notifications.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)
	uploadLimits := ordercontrollers.UploadLimits{
		MaxFileBytes: cfg.Storage.MaxUploadBytes(),
		MaxFiles:     cfg.Storage.MaxFilesPerUpload,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, p.Redis, logg)).Post("/register", controllers.AuthRegister(p.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, p.Redis, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, p.Sessions, logg)).Post("/logout", controllers.AuthLogout(p.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/gigs", func(r chi.Router) {
			r.Get("/", controllers.GigList(p.Gigs, logg))
			r.Post("/", controllers.GigCreate(p.Gigs, logg))
			r.Get("/{gigId}", controllers.GigDetail(p.Gigs, logg))
			r.Delete("/{gigId}", controllers.GigDeactivate(p.Gigs, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(p.Orders, logg))
			r.Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(p.Orders, logg))
				r.Patch("/status", ordercontrollers.UpdateStatus(p.Orders, logg))
				r.Post("/upload-delivery", ordercontrollers.UploadDelivery(p.Deliveries, uploadLimits, logg))
				r.Post("/mark-delivered", ordercontrollers.MarkDelivered(p.Orders, logg))
				r.Get("/delivery-files", ordercontrollers.ListDeliveries(p.Deliveries, logg))
				r.Delete("/delivery-files/{fileId}", ordercontrollers.DeleteDeliveryFile(p.Deliveries, logg))
				r.Get("/delivery/{filename}", ordercontrollers.AccessDelivery(p.Deliveries, logg))
				r.Post("/pay", ordercontrollers.Pay(p.Orders, logg))
				r.Post("/request-revision", ordercontrollers.RequestRevision(p.Orders, logg))
				r.Post("/handle-revision", ordercontrollers.HandleRevision(p.Orders, logg))
				r.Get("/workflow", ordercontrollers.Workflow(p.Orders, logg))
			})
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletFetch(p.Ledger, logg))
			r.Post("/deposit", controllers.WalletDeposit(p.Ledger, logg))
			r.Post("/withdraw", controllers.WalletWithdraw(p.Ledger, logg))
			r.Get("/transactions", controllers.WalletTransactions(p.Ledger, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
		})
	})

	return r
}
