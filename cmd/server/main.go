package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bjamilk/campusmarket/internal/app"
	"github.com/bjamilk/campusmarket/internal/config"
	pkgconfig "github.com/bjamilk/campusmarket/pkg/config"
	"github.com/bjamilk/campusmarket/pkg/logger"
)

const serviceName = "campusmarket"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("campus marketplace exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// run loads configuration, wires the application and blocks until ctx is
// cancelled and shutdown completes.
func run(ctx context.Context) error {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(serviceName, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting campus marketplace service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("companion_provider", cfg.CompanionProvider),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}
	if err := application.Run(ctx); err != nil {
		return err
	}

	log.Info("campus marketplace service stopped")
	return nil
}
