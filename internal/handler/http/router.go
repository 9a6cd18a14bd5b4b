package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bjamilk/campusmarket/internal/service"
	"github.com/bjamilk/campusmarket/pkg/health"
	"github.com/bjamilk/campusmarket/pkg/middleware"
)

// RouterConfig carries everything the router mounts.
type RouterConfig struct {
	Marketplace *service.MarketplaceService
	Companion   *service.CompanionService
	Health      *health.Handler
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	RateLimiter *middleware.RateLimiter
	JWTSecret   string
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all marketplace routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.Tracing())
	r.Use(middleware.Identify(cfg.JWTSecret, logger))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	listings := NewListingHandler(cfg.Marketplace, logger)
	companion := NewCompanionHandler(cfg.Companion, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(requireJSONBody)

		r.Get("/kinds", listings.ListKinds)

		r.Route("/listings/{kind}", func(r chi.Router) {
			r.Get("/", listings.ListListings)
			r.Get("/{id}", listings.GetListing)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireIdentity)
				r.Post("/", listings.CreateListing)
				r.Post("/{id}/reviews", listings.SubmitReview)
				r.Post("/{id}/reports", listings.ReportListing)
				r.Put("/{id}/closed", listings.SetClosed)
			})
		})

		r.Route("/companion", func(r chi.Router) {
			r.Get("/status", companion.Status)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireIdentity)
				if cfg.RateLimiter != nil {
					r.Use(cfg.RateLimiter.Middleware)
				}
				r.Post("/sessions", companion.StartSession)
				r.Get("/sessions/{sessionId}", companion.GetSession)
				r.Post("/sessions/{sessionId}/messages", companion.SendMessage)
			})
		})
	})

	return r
}
