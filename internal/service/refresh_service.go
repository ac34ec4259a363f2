package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/labscan/labscan-api/internal/catalog"
	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/models"
	"github.com/labscan/labscan-api/internal/repository"
	"github.com/labscan/labscan-api/internal/scrape"
)

// ProviderStatus describes the snapshot state for one provider in one city.
type ProviderStatus struct {
	Provider  models.Provider `json:"provider"`
	Supported bool            `json:"supported"`
	Exists    bool            `json:"exists"`
	Fresh     bool            `json:"fresh"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	Records   int             `json:"records,omitempty"`
}

// SnapshotArchive is the archival surface the refresh service uses:
// uploading merged snapshots and pulling them back after a restart.
type SnapshotArchive interface {
	IsEnabled() bool
	ArchiveSnapshot(ctx context.Context, provider models.Provider, citySlug string, data []byte) error
	ListArchives(ctx context.Context, provider models.Provider, citySlug string) ([]string, error)
	GetArchivedSnapshot(ctx context.Context, key string) ([]byte, error)
}

// RefreshService keeps catalog snapshots fresh. Refreshes run as scrape
// runs: pending rows in the database that the worker claims and executes.
type RefreshService struct {
	store     *catalog.Store
	directory *cities.Directory
	scrapers  map[models.Provider]scrape.Scraper
	repos     *repository.Repositories
	storage   SnapshotArchive
	maxAge    time.Duration
	logger    *slog.Logger

	// serializes merges per provider+city pair
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRefreshService creates a refresh service.
func NewRefreshService(
	store *catalog.Store,
	directory *cities.Directory,
	scrapers []scrape.Scraper,
	repos *repository.Repositories,
	storage SnapshotArchive,
	maxAge time.Duration,
	logger *slog.Logger,
) *RefreshService {
	byProvider := make(map[models.Provider]scrape.Scraper, len(scrapers))
	for _, s := range scrapers {
		byProvider[s.Provider()] = s
	}
	return &RefreshService{
		store:     store,
		directory: directory,
		scrapers:  byProvider,
		repos:     repos,
		storage:   storage,
		maxAge:    maxAge,
		logger:    logger.With("component", "refresh"),
		locks:     make(map[string]*sync.Mutex),
	}
}

// IsFresh reports whether the snapshot exists and is younger than maxAge.
func (s *RefreshService) IsFresh(provider models.Provider, citySlug string) bool {
	mtime, ok := s.store.ModTime(provider, citySlug)
	if !ok {
		return false
	}
	return time.Since(mtime) < s.maxAge
}

// EnsureFresh enqueues scrape runs for every supported provider whose
// snapshot is stale or missing. With force set, fresh snapshots are
// re-scraped too. Providers with an active run are skipped so the queue
// never holds duplicate work for a pair.
func (s *RefreshService) EnsureFresh(ctx context.Context, citySlug string, force bool) ([]*models.ScrapeRun, error) {
	city, ok := s.directory.BySlug(citySlug)
	if !ok {
		return nil, ErrCityNotFound
	}

	var enqueued []*models.ScrapeRun
	for _, provider := range models.Providers {
		if !city.Supports(provider) {
			continue
		}
		if !force && s.IsFresh(provider, city.Slug) {
			continue
		}
		active, err := s.repos.ScrapeRun.HasActive(ctx, provider, city.Slug)
		if err != nil {
			return enqueued, err
		}
		if active {
			continue
		}

		run := &models.ScrapeRun{
			Provider: provider,
			CitySlug: city.Slug,
			Forced:   force,
		}
		if err := s.repos.ScrapeRun.Create(ctx, run); err != nil {
			return enqueued, err
		}
		s.logger.Info("enqueued scrape run",
			"run_id", run.ID, "provider", provider, "city", city.Slug, "forced", force)
		enqueued = append(enqueued, run)
	}
	return enqueued, nil
}

// ExecuteRun performs one claimed scrape run: scrape, merge into the CSV
// snapshot, archive, and record the outcome on the run row.
func (s *RefreshService) ExecuteRun(ctx context.Context, run *models.ScrapeRun) error {
	city, ok := s.directory.BySlug(run.CitySlug)
	if !ok {
		return s.failRun(ctx, run, fmt.Errorf("unknown city %q", run.CitySlug))
	}
	scraper, ok := s.scrapers[run.Provider]
	if !ok {
		return s.failRun(ctx, run, fmt.Errorf("no scraper for provider %q", run.Provider))
	}

	records, err := scraper.Scrape(ctx, city)
	if err != nil {
		return s.failRun(ctx, run, err)
	}
	run.RecordsFound = len(records)

	unlock := s.lockPair(run.Provider, run.CitySlug)
	stats, err := s.store.MergeAndSave(run.Provider, run.CitySlug, records)
	unlock()
	if err != nil && !errors.Is(err, catalog.ErrEmptyInput) {
		return s.failRun(ctx, run, err)
	}
	run.RecordsAdded = stats.Added
	run.RecordsUpdated = stats.Updated

	s.archiveSnapshot(ctx, run.Provider, run.CitySlug)

	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	if err := s.repos.ScrapeRun.Update(ctx, run); err != nil {
		return err
	}

	s.logger.Info("scrape run completed",
		"run_id", run.ID,
		"provider", run.Provider,
		"city", run.CitySlug,
		"found", run.RecordsFound,
		"added", run.RecordsAdded,
		"updated", run.RecordsUpdated,
	)
	return nil
}

// Status reports per-provider snapshot state for one city.
func (s *RefreshService) Status(citySlug string) ([]ProviderStatus, error) {
	city, ok := s.directory.BySlug(citySlug)
	if !ok {
		return nil, ErrCityNotFound
	}

	statuses := make([]ProviderStatus, 0, len(models.Providers))
	for _, provider := range models.Providers {
		status := ProviderStatus{
			Provider:  provider,
			Supported: city.Supports(provider),
		}
		if status.Supported {
			if mtime, ok := s.store.ModTime(provider, city.Slug); ok {
				status.Exists = true
				status.Fresh = time.Since(mtime) < s.maxAge
				status.UpdatedAt = &mtime
				if records, err := s.store.Load(provider, city.Slug); err == nil {
					status.Records = len(records)
				}
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// RestoreMissingSnapshots downloads the newest archive for every
// supported provider+city pair with no local snapshot. Local disk is
// ephemeral on scale-to-zero platforms; archives bridge restarts so a
// fresh instance can answer comparisons before the first scrape lands.
// Returns the number of snapshots restored.
func (s *RefreshService) RestoreMissingSnapshots(ctx context.Context) int {
	if s.storage == nil || !s.storage.IsEnabled() {
		return 0
	}

	restored := 0
	for _, city := range s.directory.All() {
		for _, provider := range models.Providers {
			if !city.Supports(provider) {
				continue
			}
			if _, ok := s.store.ModTime(provider, city.Slug); ok {
				continue
			}
			keys, err := s.storage.ListArchives(ctx, provider, city.Slug)
			if err != nil {
				s.logger.Warn("failed to list archives",
					"provider", provider, "city", city.Slug, "error", err)
				continue
			}
			if len(keys) == 0 {
				continue
			}
			// keys embed the snapshot timestamp, so the last one is newest
			key := keys[len(keys)-1]
			data, err := s.storage.GetArchivedSnapshot(ctx, key)
			if err != nil {
				s.logger.Warn("failed to fetch archive", "key", key, "error", err)
				continue
			}
			if err := s.store.WriteRaw(provider, city.Slug, data); err != nil {
				s.logger.Warn("failed to write restored snapshot", "key", key, "error", err)
				continue
			}
			s.logger.Info("restored snapshot from archive",
				"provider", provider, "city", city.Slug, "key", key)
			restored++
		}
	}
	return restored
}

func (s *RefreshService) failRun(ctx context.Context, run *models.ScrapeRun, cause error) error {
	now := time.Now()
	run.Status = models.RunStatusFailed
	run.ErrorMessage = cause.Error()
	run.CompletedAt = &now
	if err := s.repos.ScrapeRun.Update(ctx, run); err != nil {
		s.logger.Error("failed to persist run failure", "run_id", run.ID, "error", err)
	}
	s.logger.Warn("scrape run failed",
		"run_id", run.ID, "provider", run.Provider, "city", run.CitySlug, "error", cause)
	return cause
}

func (s *RefreshService) lockPair(provider models.Provider, citySlug string) func() {
	key := string(provider) + "/" + citySlug
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func (s *RefreshService) archiveSnapshot(ctx context.Context, provider models.Provider, citySlug string) {
	if s.storage == nil || !s.storage.IsEnabled() {
		return
	}
	data, err := os.ReadFile(s.store.Path(provider, citySlug))
	if err != nil {
		s.logger.Warn("failed to read snapshot for archival", "error", err)
		return
	}
	if err := s.storage.ArchiveSnapshot(ctx, provider, citySlug, data); err != nil {
		s.logger.Warn("snapshot archival failed", "error", err)
	}
}
