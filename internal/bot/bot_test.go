package bot

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/labscan/labscan-api/internal/catalog"
	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/match"
	"github.com/labscan/labscan-api/internal/models"
	"github.com/labscan/labscan-api/internal/repository"
	"github.com/labscan/labscan-api/internal/service"
)

type noopRunRepo struct{}

func (noopRunRepo) Create(ctx context.Context, run *models.ScrapeRun) error { return nil }
func (noopRunRepo) GetByID(ctx context.Context, id string) (*models.ScrapeRun, error) {
	return nil, nil
}
func (noopRunRepo) Update(ctx context.Context, run *models.ScrapeRun) error { return nil }
func (noopRunRepo) ClaimPending(ctx context.Context) (*models.ScrapeRun, error) {
	return nil, nil
}
func (noopRunRepo) HasActive(ctx context.Context, provider models.Provider, citySlug string) (bool, error) {
	return false, nil
}
func (noopRunRepo) LatestCompleted(ctx context.Context, provider models.Provider, citySlug string) (*models.ScrapeRun, error) {
	return nil, nil
}
func (noopRunRepo) ListRecent(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	return nil, nil
}
func (noopRunRepo) MarkStaleRunningFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	return 0, nil
}

func newTestBot(t *testing.T) (*Bot, *catalog.Store) {
	t.Helper()

	directory := cities.NewDirectory([]models.City{
		{Name: "Москва", Slug: "москва", InvitroSlug: "moskva", GemotestSlug: "moskva", HelixID: "330"},
	})
	helixCities := cities.NewHelixCities([]models.HelixCity{
		{ID: "330", Name: "Москва", Alias: "msk"},
	})
	normalizer := match.NewNormalizer(match.NewSynonymTable(map[string][]string{
		"общий анализ крови": {"оак"},
	}))
	store := catalog.NewStore(t.TempDir(), slog.Default())
	repos := &repository.Repositories{ScrapeRun: noopRunRepo{}}

	compareSvc := service.NewCompareService(store, directory, helixCities, normalizer, nil, slog.Default())
	refreshSvc := service.NewRefreshService(store, directory, nil, repos, nil, 24*time.Hour, slog.Default())

	return newBot(compareSvc, refreshSvc, directory, slog.Default()), store
}

func TestBotStartGreeting(t *testing.T) {
	b, _ := newTestBot(t)

	replies := b.processMessage(context.Background(), 1, "/start")
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if !strings.Contains(replies[0], "Напиши название города") {
		t.Errorf("greeting missing city prompt: %q", replies[0])
	}
}

func TestBotRequiresStart(t *testing.T) {
	b, _ := newTestBot(t)

	replies := b.processMessage(context.Background(), 1, "Москва")
	if len(replies) != 1 || !strings.Contains(replies[0], "/start") {
		t.Errorf("expected start prompt, got %v", replies)
	}
}

func TestBotCitySelection(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.processMessage(ctx, 1, "/start")

	// unknown city keeps the wizard on the city step
	replies := b.processMessage(ctx, 1, "Атлантида")
	if !strings.Contains(replies[0], "не найден") {
		t.Errorf("expected not-found reply, got %q", replies[0])
	}

	// lookup ignores case, spaces and hyphens
	replies = b.processMessage(ctx, 1, "мОсКвА")
	if !strings.Contains(replies[0], "Город выбран: Москва") {
		t.Errorf("expected city confirmation, got %q", replies[0])
	}
}

func TestBotComparisonFlow(t *testing.T) {
	b, store := newTestBot(t)
	ctx := context.Background()

	if err := store.Save(models.ProviderInvitro, "москва", []models.CatalogRecord{
		{Title: "Общий анализ крови", Link: "https://www.invitro.ru/oak/", Price: "500 ₽"},
	}); err != nil {
		t.Fatalf("failed to seed snapshot: %v", err)
	}
	if err := store.Save(models.ProviderGemotest, "москва", []models.CatalogRecord{
		{Title: "Общий анализ крови", Link: "https://gemotest.ru/oak/", Price: "1 450 ₽"},
	}); err != nil {
		t.Fatalf("failed to seed snapshot: %v", err)
	}

	b.processMessage(ctx, 1, "/start")
	b.processMessage(ctx, 1, "Москва")

	replies := b.processMessage(ctx, 1, "оак")
	if len(replies) != 2 {
		t.Fatalf("expected update notice and results, got %d replies", len(replies))
	}
	result := replies[1]
	if !strings.Contains(result, "🔬 *Оак*") {
		t.Errorf("missing capitalized query header: %q", result)
	}
	if !strings.Contains(result, "Самая дешевая: [Инвитро]") {
		t.Errorf("expected invitro as cheapest: %q", result)
	}
	if !strings.Contains(result, "*500 ₽*") {
		t.Errorf("expected formatted price: %q", result)
	}
	if !strings.Contains(result, "*1 450 ₽*") {
		t.Errorf("expected thousands separator: %q", result)
	}
	if !strings.Contains(result, "Хеликс: — — —") {
		t.Errorf("expected dash placeholders for missing helix offer: %q", result)
	}
}

func TestBotNoCatalogData(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.processMessage(ctx, 1, "/start")
	b.processMessage(ctx, 1, "Москва")

	replies := b.processMessage(ctx, 1, "оак")
	last := replies[len(replies)-1]
	if !strings.Contains(last, "собираются") {
		t.Errorf("expected data-pending reply, got %q", last)
	}
}

func TestBotStopEndsDialog(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.processMessage(ctx, 1, "/start")
	replies := b.processMessage(ctx, 1, "/stop")
	if !strings.Contains(replies[0], "завершён") {
		t.Errorf("expected farewell, got %q", replies[0])
	}

	replies = b.processMessage(ctx, 1, "Москва")
	if !strings.Contains(replies[0], "/start") {
		t.Errorf("state should be cleared after /stop, got %q", replies[0])
	}
}

func TestBotStatesAreIsolatedPerUser(t *testing.T) {
	b, _ := newTestBot(t)
	ctx := context.Background()

	b.processMessage(ctx, 1, "/start")
	b.processMessage(ctx, 1, "Москва")

	// second user has not started yet
	replies := b.processMessage(ctx, 2, "оак")
	if !strings.Contains(replies[0], "/start") {
		t.Errorf("expected start prompt for fresh user, got %q", replies[0])
	}
}
