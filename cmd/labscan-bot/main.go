// Package main is the entry point for the labscan Telegram bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labscan/labscan-api/internal/bot"
	"github.com/labscan/labscan-api/internal/config"
	"github.com/labscan/labscan-api/internal/database"
	"github.com/labscan/labscan-api/internal/logging"
	"github.com/labscan/labscan-api/internal/repository"
	"github.com/labscan/labscan-api/internal/service"
	"github.com/labscan/labscan-api/internal/version"
	"github.com/labscan/labscan-api/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting labscan-bot", "version", v.Version, "commit", v.Commit)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.TelegramBotToken == "" {
		logger.Error("TELEGRAM_BOT_TOKEN is required")
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)

	if _, err := repos.ScrapeRun.MarkStaleRunningFailed(context.Background(), 1*time.Hour); err != nil {
		logger.Warn("failed to clean up stale runs", "error", err)
	}

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	if restored := services.Refresh.RestoreMissingSnapshots(context.Background()); restored > 0 {
		logger.Info("restored snapshots from archive", "count", restored)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The bot enqueues refresh runs; a local worker executes them so the
	// bot binary is self-sufficient without the API server.
	refreshWorker := worker.New(
		repos.ScrapeRun,
		services.Refresh,
		services.Directory,
		worker.Config{
			PollInterval: 5 * time.Second,
			Concurrency:  cfg.WorkerConcurrency,
		},
		logger,
	)
	refreshWorker.Start(ctx)

	b, err := bot.New(cfg.TelegramBotToken, services.Compare, services.Refresh, services.Directory, logger)
	if err != nil {
		logger.Error("failed to connect to telegram", "error", err)
		os.Exit(1)
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan
		logger.Info("shutting down bot")
		cancel()
	}()

	if err := b.Run(ctx); err != nil {
		logger.Error("bot stopped with error", "error", err)
		os.Exit(1)
	}

	refreshWorker.Stop()
	logger.Info("bot stopped")
}
