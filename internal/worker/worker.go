// Package worker executes queued scrape runs and keeps snapshots fresh.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/repository"
	"github.com/labscan/labscan-api/internal/service"
)

// ArchiveCleaner deletes snapshot archives older than a retention period.
type ArchiveCleaner interface {
	DeleteOldArchives(ctx context.Context, maxAge time.Duration) (int, error)
}

// Worker claims pending scrape runs and executes them. It also sweeps
// the city directory periodically so stale snapshots are re-queued
// without anyone asking for them.
type Worker struct {
	runRepo          repository.ScrapeRunRepository
	refreshSvc       *service.RefreshService
	directory        *cities.Directory
	pollInterval     time.Duration
	sweepInterval    time.Duration
	concurrency      int
	archiveCleaner   ArchiveCleaner
	archiveRetention time.Duration
	inFlight         int64
	stop             chan struct{}
	wg               sync.WaitGroup
	logger           *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
	// SweepInterval controls how often every known city is checked for
	// stale snapshots. Zero disables the sweep.
	SweepInterval time.Duration
	// ArchiveCleaner and ArchiveRetention enable archive cleanup during
	// the sweep. Retention zero keeps archives forever.
	ArchiveCleaner   ArchiveCleaner
	ArchiveRetention time.Duration
}

// New creates a new worker.
func New(
	runRepo repository.ScrapeRunRepository,
	refreshSvc *service.RefreshService,
	directory *cities.Directory,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		runRepo:          runRepo,
		refreshSvc:       refreshSvc,
		directory:        directory,
		pollInterval:     cfg.PollInterval,
		sweepInterval:    cfg.SweepInterval,
		concurrency:      cfg.Concurrency,
		archiveCleaner:   cfg.ArchiveCleaner,
		archiveRetention: cfg.ArchiveRetention,
		stop:             make(chan struct{}),
		logger:           logger.With("component", "worker"),
	}
}

// Start begins processing scrape runs.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "concurrency", w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}

	if w.sweepInterval > 0 {
		w.wg.Add(1)
		go w.runSweeper(ctx)
	}
}

// Busy reports whether any scrape run is currently executing. Used by
// the idle monitor so scale-to-zero deployments do not cut a merge short.
func (w *Worker) Busy() bool {
	return atomic.LoadInt64(&w.inFlight) > 0
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processNextRun(ctx, workerID)
		}
	}
}

func (w *Worker) processNextRun(ctx context.Context, workerID int) {
	run, err := w.runRepo.ClaimPending(ctx)
	if err != nil {
		w.logger.Error("failed to claim scrape run", "worker_id", workerID, "error", err)
		return
	}
	if run == nil {
		return // nothing pending
	}

	atomic.AddInt64(&w.inFlight, 1)
	defer atomic.AddInt64(&w.inFlight, -1)

	w.logger.Info("processing scrape run",
		"worker_id", workerID,
		"run_id", run.ID,
		"provider", run.Provider,
		"city", run.CitySlug,
	)

	if err := w.refreshSvc.ExecuteRun(ctx, run); err != nil {
		// ExecuteRun already recorded the failure on the run row
		w.logger.Warn("scrape run failed", "run_id", run.ID, "error", err)
	}
}

func (w *Worker) runSweeper(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep enqueues refreshes for every city with a stale or missing
// snapshot, then prunes snapshot archives past retention.
func (w *Worker) sweep(ctx context.Context) {
	for _, city := range w.directory.All() {
		runs, err := w.refreshSvc.EnsureFresh(ctx, city.Slug, false)
		if err != nil {
			w.logger.Warn("sweep failed for city", "city", city.Slug, "error", err)
			continue
		}
		if len(runs) > 0 {
			w.logger.Info("sweep enqueued refreshes", "city", city.Slug, "count", len(runs))
		}
	}

	if w.archiveCleaner != nil && w.archiveRetention > 0 {
		deleted, err := w.archiveCleaner.DeleteOldArchives(ctx, w.archiveRetention)
		if err != nil {
			w.logger.Warn("archive cleanup failed", "error", err)
		} else if deleted > 0 {
			w.logger.Info("pruned expired archives", "count", deleted)
		}
	}
}
