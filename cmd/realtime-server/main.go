package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roobiinpandey/al-marya-rostary-sub003/internal/server"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/config"
	"github.com/roobiinpandey/al-marya-rostary-sub003/pkg/logging"
)

func main() {
	bootLogger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.NewApp(logger, ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
