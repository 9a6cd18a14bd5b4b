package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/bjamilk/campusmarket/pkg/config"
	"github.com/bjamilk/campusmarket/pkg/database"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Companion providers.
const (
	ProviderGemini = "gemini"
	ProviderMock   = "mock"
)

// Config holds all configuration for the marketplace service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Listing store backend: memory, postgres or redis
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"campusmarket"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"campusmarket_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"campusmarket"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// AI Study Companion. Without an API key the gemini provider is disabled.
	CompanionProvider      string  `env:"COMPANION_PROVIDER" envDefault:"gemini"`
	CompanionAPIKey        string  `env:"COMPANION_API_KEY"`
	CompanionModel         string  `env:"COMPANION_MODEL" envDefault:"gemini-2.5-flash"`
	CompanionBaseURL       string  `env:"COMPANION_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	CompanionSessionTTLMin int     `env:"COMPANION_SESSION_TTL_MINUTES" envDefault:"60"`
	CompanionRateLimitRPS  float64 `env:"COMPANION_RATE_LIMIT_RPS" envDefault:"1"`
	CompanionRateBurst     int     `env:"COMPANION_RATE_LIMIT_BURST" envDefault:"5"`

	// HS256 secret for bearer tokens. Empty means gateway identity headers.
	JWTSecret string `env:"JWT_SECRET"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load marketplace config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("invalid POSTGRES_PORT: %d", c.PostgresPort)
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, postgres, redis, got %q", c.StoreBackend)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	switch c.CompanionProvider {
	case ProviderGemini, ProviderMock:
	default:
		return fmt.Errorf("COMPANION_PROVIDER must be gemini or mock, got %q", c.CompanionProvider)
	}
	if c.CompanionRateLimitRPS <= 0 || c.CompanionRateBurst < 1 {
		return fmt.Errorf("companion rate limit must be positive")
	}
	return nil
}

// Postgres returns the pool settings for database.NewPostgresPool.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the client settings for database.NewRedisClient.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{Addr: c.RedisAddr, Password: c.RedisPass, DB: c.RedisDB}
}

// CompanionSessionTTL returns the idle lifetime of a companion session.
func (c *Config) CompanionSessionTTL() time.Duration {
	return time.Duration(c.CompanionSessionTTLMin) * time.Minute
}

// SlowQueryThreshold returns the slow query logging threshold.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
