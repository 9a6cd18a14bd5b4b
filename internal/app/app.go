package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/bjamilk/campusmarket/internal/companion"
	"github.com/bjamilk/campusmarket/internal/companion/gemini"
	"github.com/bjamilk/campusmarket/internal/companion/mock"
	"github.com/bjamilk/campusmarket/internal/config"
	"github.com/bjamilk/campusmarket/internal/event"
	handler "github.com/bjamilk/campusmarket/internal/handler/http"
	"github.com/bjamilk/campusmarket/internal/repository"
	"github.com/bjamilk/campusmarket/internal/repository/memory"
	"github.com/bjamilk/campusmarket/internal/repository/postgres"
	"github.com/bjamilk/campusmarket/internal/repository/postgres/migrations"
	redisrepo "github.com/bjamilk/campusmarket/internal/repository/redis"
	"github.com/bjamilk/campusmarket/internal/service"
	"github.com/bjamilk/campusmarket/pkg/database"
	"github.com/bjamilk/campusmarket/pkg/health"
	"github.com/bjamilk/campusmarket/pkg/httpclient"
	pkgkafka "github.com/bjamilk/campusmarket/pkg/kafka"
	"github.com/bjamilk/campusmarket/pkg/middleware"
	"github.com/bjamilk/campusmarket/pkg/tracing"
)

const (
	serviceName    = "campusmarket"
	serviceVersion = "0.1.0"

	// sessionSweepInterval is how often idle companion sessions and rate
	// limiter buckets are dropped.
	sessionSweepInterval = time.Minute
)

// App wires together all dependencies and runs the marketplace service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	companion      *service.CompanionService
	rateLimiter    *middleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(httpclient.Collectors()...)

	healthHandler := health.NewHandler()

	// Listing stores.
	stores, err := a.openStores(ctx, reg, healthHandler)
	if err != nil {
		a.closeStores()
		return nil, err
	}

	// Kafka producer.
	var publisher service.EventPublisher = event.NopPublisher{}
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.ProducerConfig{Brokers: cfg.KafkaBrokers}, logger)
		if err := pingKafkaWithRetry(ctx, a.producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		publisher = event.NewProducer(a.producer, logger)
		producer := a.producer
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return producer.Ping(ctx)
		})
	}

	// Build the dependency graph.
	metrics := service.NewMetrics(reg)
	marketplace := service.NewMarketplaceService(stores, publisher, metrics, logger)
	a.companion = service.NewCompanionService(newCompanionProvider(cfg, logger), cfg.CompanionSessionTTL(), metrics, logger)
	a.rateLimiter = middleware.NewRateLimiter(cfg.CompanionRateLimitRPS, cfg.CompanionRateBurst, logger)

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Marketplace: marketplace,
		Companion:   a.companion,
		Health:      healthHandler,
		Metrics:     middleware.NewHTTPMetrics(reg),
		Gatherer:    reg,
		RateLimiter: a.rateLimiter,
		JWTSecret:   cfg.JWTSecret,
		Logger:      logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStores connects the configured backend and returns its registry.
func (a *App) openStores(ctx context.Context, reg prometheus.Registerer, hh *health.Handler) (*repository.Registry, error) {
	cfg, logger := a.cfg, a.logger

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.pool = pool
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.PostgresHost),
			slog.Int("port", cfg.PostgresPort),
			slog.String("database", cfg.PostgresDB),
		)
		if err := database.RegisterPoolMetrics(reg, pool); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}

		if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		if cfg.SlowQueryThresholdMs > 0 {
			database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
		}
		hh.Register("postgres", func(ctx context.Context) error {
			return pool.Ping(ctx)
		})
		return postgres.NewRegistry(pool), nil

	case config.BackendRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.rdb = rdb
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		hh.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		return redisrepo.NewRegistry(rdb), nil

	default:
		logger.Warn("using in-memory listing store; data is lost on restart")
		return memory.NewRegistry(), nil
	}
}

func (a *App) closeStores() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}
}

// newCompanionProvider returns nil when the companion cannot be enabled.
func newCompanionProvider(cfg *config.Config, logger *slog.Logger) companion.Provider {
	if cfg.CompanionProvider == config.ProviderMock {
		logger.Info("AI Study Companion using mock provider")
		return mock.New()
	}

	p, err := gemini.New(gemini.Config{
		APIKey:  cfg.CompanionAPIKey,
		Model:   cfg.CompanionModel,
		BaseURL: cfg.CompanionBaseURL,
	}, gemini.NewBreakerClient(logger), logger)
	if err != nil {
		logger.Warn("AI Study Companion is unavailable", slog.String("reason", err.Error()))
		return nil
	}
	logger.Info("AI Study Companion enabled", slog.String("model", cfg.CompanionModel))
	return p
}

// Handler returns the HTTP handler serving all routes.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and background sweeps, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("store_backend", a.cfg.StoreBackend),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go a.companion.RunEviction(ctx, sessionSweepInterval)
	go a.runRateLimiterSweep(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

func (a *App) runRateLimiterSweep(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.rateLimiter.Evict(10 * time.Minute)
		}
	}
}

// Shutdown gracefully stops all components in order: HTTP server, tracer,
// Kafka producer, then the store connection.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.closeStores()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
