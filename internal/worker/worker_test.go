package worker

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/labscan/labscan-api/internal/catalog"
	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/models"
	"github.com/labscan/labscan-api/internal/repository"
	"github.com/labscan/labscan-api/internal/scrape"
	"github.com/labscan/labscan-api/internal/service"
)

type memRunRepo struct {
	mu   sync.Mutex
	runs map[string]*models.ScrapeRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[string]*models.ScrapeRun)}
}

func (m *memRunRepo) Create(ctx context.Context, run *models.ScrapeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	clone := *run
	m.runs[run.ID] = &clone
	return nil
}

func (m *memRunRepo) GetByID(ctx context.Context, id string) (*models.ScrapeRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	clone := *run
	return &clone, nil
}

func (m *memRunRepo) Update(ctx context.Context, run *models.ScrapeRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *run
	m.runs[run.ID] = &clone
	return nil
}

func (m *memRunRepo) ClaimPending(ctx context.Context) (*models.ScrapeRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *models.ScrapeRun
	for _, run := range m.runs {
		if run.Status != models.RunStatusPending {
			continue
		}
		if oldest == nil || run.CreatedAt.Before(oldest.CreatedAt) {
			oldest = run
		}
	}
	if oldest == nil {
		return nil, nil
	}
	now := time.Now()
	oldest.Status = models.RunStatusRunning
	oldest.StartedAt = &now
	clone := *oldest
	return &clone, nil
}

func (m *memRunRepo) HasActive(ctx context.Context, provider models.Provider, citySlug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, run := range m.runs {
		if run.Provider == provider && run.CitySlug == citySlug &&
			(run.Status == models.RunStatusPending || run.Status == models.RunStatusRunning) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRunRepo) LatestCompleted(ctx context.Context, provider models.Provider, citySlug string) (*models.ScrapeRun, error) {
	return nil, nil
}

func (m *memRunRepo) ListRecent(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	return nil, nil
}

func (m *memRunRepo) MarkStaleRunningFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	return 0, nil
}

func (m *memRunRepo) statusOf(id string) models.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[id]; ok {
		return run.Status
	}
	return ""
}

type stubScraper struct {
	provider models.Provider
	records  []models.CatalogRecord
}

func (s *stubScraper) Provider() models.Provider { return s.provider }

func (s *stubScraper) Scrape(ctx context.Context, city models.City) ([]models.CatalogRecord, error) {
	return s.records, nil
}

func newTestWorker(t *testing.T, repo *memRunRepo, sweep time.Duration) (*Worker, *catalog.Store) {
	t.Helper()

	directory := cities.NewDirectory([]models.City{
		{Name: "Москва", Slug: "москва", InvitroSlug: "moskva", GemotestSlug: "-", HelixID: "-"},
	})
	store := catalog.NewStore(t.TempDir(), slog.Default())
	scraper := &stubScraper{
		provider: models.ProviderInvitro,
		records: []models.CatalogRecord{
			{Title: "Глюкоза", Link: "https://www.invitro.ru/glu/", Price: "260 ₽"},
		},
	}
	refreshSvc := service.NewRefreshService(store, directory,
		[]scrape.Scraper{scraper}, &repository.Repositories{ScrapeRun: repo},
		nil, 24*time.Hour, slog.Default())

	return New(repo, refreshSvc, directory, Config{
		PollInterval:  10 * time.Millisecond,
		Concurrency:   1,
		SweepInterval: sweep,
	}, slog.Default()), store
}

func TestWorkerProcessesQueuedRun(t *testing.T) {
	repo := newMemRunRepo()
	w, store := newTestWorker(t, repo, 0)

	run := &models.ScrapeRun{Provider: models.ProviderInvitro, CitySlug: "москва"}
	if err := repo.Create(context.Background(), run); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	deadline := time.After(2 * time.Second)
	for repo.statusOf(run.ID) != models.RunStatusCompleted {
		select {
		case <-deadline:
			t.Fatalf("run not completed in time, status %q", repo.statusOf(run.ID))
		case <-time.After(10 * time.Millisecond):
		}
	}

	records, err := store.Load(models.ProviderInvitro, "москва")
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
}

func TestWorkerSweepEnqueuesStaleCities(t *testing.T) {
	repo := newMemRunRepo()
	w, _ := newTestWorker(t, repo, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	// no snapshot exists, so the sweeper must enqueue and the worker
	// must complete a run for the only supported provider
	deadline := time.After(2 * time.Second)
	for {
		repo.mu.Lock()
		var done bool
		for _, run := range repo.runs {
			if run.Status == models.RunStatusCompleted {
				done = true
			}
		}
		repo.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper never produced a completed run")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// fakeArchiveCleaner records DeleteOldArchives calls.
type fakeArchiveCleaner struct {
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
}

func (f *fakeArchiveCleaner) DeleteOldArchives(ctx context.Context, maxAge time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.maxAge = maxAge
	return 1, nil
}

func (f *fakeArchiveCleaner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeArchiveCleaner) lastMaxAge() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxAge
}

func TestWorkerSweepPrunesExpiredArchives(t *testing.T) {
	repo := newMemRunRepo()
	directory := cities.NewDirectory(nil)
	store := catalog.NewStore(t.TempDir(), slog.Default())
	refreshSvc := service.NewRefreshService(store, directory, nil,
		&repository.Repositories{ScrapeRun: repo}, nil, 24*time.Hour, slog.Default())

	cleaner := &fakeArchiveCleaner{}
	retention := 90 * 24 * time.Hour
	w := New(repo, refreshSvc, directory, Config{
		PollInterval:     10 * time.Millisecond,
		Concurrency:      1,
		SweepInterval:    20 * time.Millisecond,
		ArchiveCleaner:   cleaner,
		ArchiveRetention: retention,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	deadline := time.After(2 * time.Second)
	for cleaner.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("sweep never invoked archive cleanup")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := cleaner.lastMaxAge(); got != retention {
		t.Errorf("cleanup maxAge = %v, want %v", got, retention)
	}
}

func TestWorkerStopWaitsForWorkers(t *testing.T) {
	repo := newMemRunRepo()
	w, _ := newTestWorker(t, repo, 0)

	ctx := context.Background()
	w.Start(ctx)

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
