package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bjamilk/campusmarket/internal/seed"
	pkgconfig "github.com/bjamilk/campusmarket/pkg/config"
	"github.com/bjamilk/campusmarket/pkg/httpclient"
	"github.com/bjamilk/campusmarket/pkg/logger"
)

type config struct {
	BaseURL  string        `env:"SEED_BASE_URL" envDefault:"http://localhost:8080"`
	Timeout  time.Duration `env:"SEED_TIMEOUT" envDefault:"30s"`
	LogLevel string        `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", slog.String("error", err.Error()))
		os.Exit(1)
	}
	var cfg config
	if err := pkgconfig.Load(&cfg); err != nil {
		slog.Error("failed to parse seed config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("campusmarket-seed", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client := httpclient.New(httpclient.DefaultConfig())
	res, err := seed.New(client, cfg.BaseURL, log).Run(ctx, seed.Demo())
	if err != nil {
		log.Error("seed failed",
			slog.Int("listings", res.Listings),
			slog.Int("reviews", res.Reviews),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	log.Info("seed completed",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("listings", res.Listings),
		slog.Int("reviews", res.Reviews),
	)
}
