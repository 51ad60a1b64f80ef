package api

import (
	"context"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/channel-sync/internal/api/handlers"
	"github.com/athebyme/gomarket-platform/channel-sync/internal/api/middleware"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/auth"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Pinger проверка готовности зависимости
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers обработчики маршрутов API
type Handlers struct {
	Catalog  *handlers.CatalogHandler
	Sync     *handlers.SyncHandler
	Accounts *handlers.AccountHandler
	Webhooks *handlers.WebhookHandler
}

// RouterConfig параметры маршрутизатора
type RouterConfig struct {
	CORSAllowOrigins []string
	RequestTimeout   time.Duration
	// RateLimit запросов в минуту с одного адреса, 0 без ограничения
	RateLimit    int
	RequiredRole string
}

// SetupRouter настраивает маршрутизатор. Если authPort равен nil, арендатор берется только из X-Tenant-ID.
func SetupRouter(
	h Handlers,
	authPort interfaces.AuthPort,
	cache interfaces.CachePort,
	readiness Pinger,
	cfg RouterConfig,
	logger interfaces.LoggerPort,
) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.CORS(cfg.CORSAllowOrigins))
	r.Use(middleware.Tracing)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RateLimiter(cache, cfg.RateLimit, time.Minute, logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Head("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if readiness != nil {
			if err := readiness.Ping(r.Context()); err != nil {
				logger.WarnWithContext(r.Context(), "Хранилище недоступно", "error", err.Error())
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, map[string]string{"status": "unavailable"})
				return
			}
		}
		render.JSON(w, r, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// вебхуки проверяются подписью канала, а не токеном
	if h.Webhooks != nil {
		r.Post("/webhooks/{channel}", h.Webhooks.Receive)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if authPort != nil {
			r.Use(auth.AuthMiddleware(authPort, logger))
			if cfg.RequiredRole != "" {
				r.Use(auth.RequireRole(cfg.RequiredRole))
			}
		}
		r.Use(middleware.Tenant)

		r.Route("/catalog", func(r chi.Router) {
			r.Post("/preview", h.Catalog.Preview)
			r.Post("/commit", h.Catalog.Commit)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/pull", h.Sync.Pull)
			r.Post("/push", h.Sync.Push)
			r.Get("/jobs", h.Sync.ListJobs)
			r.Get("/jobs/{id}", h.Sync.GetJob)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.Accounts.List)
			r.Post("/", h.Accounts.Connect)
			r.Put("/{id}/tokens", h.Accounts.RotateTokens)
			r.Patch("/{id}/status", h.Accounts.SetStatus)
		})
	})

	return r
}
