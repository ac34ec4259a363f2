// Package main is the entry point for the labscan-api server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/labscan/labscan-api/internal/config"
	"github.com/labscan/labscan-api/internal/database"
	"github.com/labscan/labscan-api/internal/http/handlers"
	"github.com/labscan/labscan-api/internal/http/mw"
	"github.com/labscan/labscan-api/internal/http/routes"
	"github.com/labscan/labscan-api/internal/logging"
	"github.com/labscan/labscan-api/internal/repository"
	"github.com/labscan/labscan-api/internal/service"
	"github.com/labscan/labscan-api/internal/shutdown"
	"github.com/labscan/labscan-api/internal/version"
	"github.com/labscan/labscan-api/internal/worker"
)

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting labscan-api",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
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

	schemaVersion, err := database.GetLatestSchemaVersion(db)
	if err != nil {
		logger.Warn("failed to get schema version", "error", err)
	} else if schemaVersion != "" {
		logger.Info("database schema ready", "schema_version", schemaVersion)
	}

	repos := repository.NewRepositories(db)

	// Runs stuck in running from a previous server instance are failed on
	// startup so their provider+city pairs can be refreshed again.
	staleCount, err := repos.ScrapeRun.MarkStaleRunningFailed(context.Background(), 1*time.Hour)
	if err != nil {
		logger.Warn("failed to clean up stale runs", "error", err)
	} else if staleCount > 0 {
		logger.Info("cleaned up stale scrape runs", "count", staleCount)
	}

	services, err := service.NewServices(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	logger.Info("reference data loaded", "cities", len(services.Directory.All()))

	// Local disk may be empty after a redeploy; pull the newest archives
	// back before serving comparisons.
	if restored := services.Refresh.RestoreMissingSnapshots(context.Background()); restored > 0 {
		logger.Info("restored snapshots from archive", "count", restored)
	}

	// Background worker: executes queued scrape runs and sweeps for
	// stale snapshots.
	refreshWorker := worker.New(
		repos.ScrapeRun,
		services.Refresh,
		services.Directory,
		worker.Config{
			PollInterval:     5 * time.Second,
			Concurrency:      cfg.WorkerConcurrency,
			SweepInterval:    cfg.WorkerPollInterval,
			ArchiveCleaner:   services.Storage,
			ArchiveRetention: cfg.ArchiveRetention,
		},
		logger,
	)
	ctx, cancel := context.WithCancel(context.Background())
	refreshWorker.Start(ctx)

	// Idle monitor for scale-to-zero platforms. Health probes do not
	// count as activity; in-flight scrape runs block the shutdown.
	idleMonitor := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:     cfg.IdleTimeout,
		Logger:      logger,
		IgnorePaths: []string{"/healthz", "/readyz"},
		BusyCheck:   refreshWorker.Busy,
	})
	idleMonitor.Start()

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(idleMonitor.Middleware)
	router.Use(mw.Timeout(mw.TimeoutConfig{
		Default:  15 * time.Second,
		Extended: 60 * time.Second,
		// comparisons scan whole catalogs, refresh may wait on merges
		ExtendedPatterns: []string{"/compare", "/refresh"},
	}))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (64KB) - comparison payloads are small
	router.Use(middleware.RequestSize(64 * 1024))
	router.Use(httprate.LimitByIP(100, time.Minute))
	router.Use(middleware.Throttle(100))

	// Main API with OpenAPI docs
	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))

	// Config for hidden routes (K8s probes - no docs needed)
	hiddenConfig := huma.DefaultConfig("LabScan API", v.Short())
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	hiddenAPI := humachi.New(router, hiddenConfig)

	routes.Register(api, &routes.Handlers{
		City:    handlers.NewCityHandler(services.Directory),
		Compare: handlers.NewCompareHandler(services.Compare, services.Directory),
		Catalog: handlers.NewCatalogHandler(services.Refresh, repos.ScrapeRun),
	})
	routes.RegisterProbes(hiddenAPI, handlers.NewReadyzHandler(db))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case <-sigChan:
			logger.Info("shutting down server", "reason", "signal")
		case <-idleMonitor.IdleChan():
			logger.Info("shutting down server", "reason", "idle")
		}

		// Stop the worker first so in-flight scrapes finish
		idleMonitor.Stop()
		cancel()
		refreshWorker.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server", "port", cfg.Port, "base_url", cfg.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
