package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/labscan/labscan-api/internal/catalog"
	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/match"
	"github.com/labscan/labscan-api/internal/models"
)

// ========================================
// Compare service tests
// ========================================

func testDirectory() *cities.Directory {
	return cities.NewDirectory([]models.City{
		{
			Name:         "Москва",
			Slug:         "москва",
			InvitroSlug:  "moskva",
			GemotestSlug: "moskva",
			HelixID:      "330",
		},
		{
			Name:        "Тула",
			Slug:        "тула",
			InvitroSlug: "tula",
			// Gemotest and Helix absent in this city
			GemotestSlug: "-",
			HelixID:      "-",
		},
	})
}

func testHelix() *cities.HelixCities {
	return cities.NewHelixCities([]models.HelixCity{
		{ID: "330", Name: "Москва", Alias: "msk"},
	})
}

func testNormalizer() *match.Normalizer {
	return match.NewNormalizer(match.NewSynonymTable(map[string][]string{
		"общий анализ крови": {"оак", "клинический анализ крови"},
		"витамин d":          {"витамин д", "25-oh витамин d"},
	}))
}

func newTestCompareService(t *testing.T) (*CompareService, *catalog.Store) {
	t.Helper()
	store := catalog.NewStore(t.TempDir(), slog.Default())
	svc := NewCompareService(store, testDirectory(), testHelix(), testNormalizer(), nil, slog.Default())
	return svc, store
}

func mustSave(t *testing.T, store *catalog.Store, provider models.Provider, citySlug string, records []models.CatalogRecord) {
	t.Helper()
	if err := store.Save(provider, citySlug, records); err != nil {
		t.Fatalf("failed to save %s snapshot: %v", provider, err)
	}
}

func TestCompareCheapestAcrossProviders(t *testing.T) {
	svc, store := newTestCompareService(t)

	mustSave(t, store, models.ProviderInvitro, "москва", []models.CatalogRecord{
		{Title: "Общий анализ крови", Link: "https://www.invitro.ru/123/", Price: "500 ₽"},
	})
	mustSave(t, store, models.ProviderGemotest, "москва", []models.CatalogRecord{
		{Title: "Общий анализ крови", Link: "https://gemotest.ru/oak/", Price: "450,00 ₽"},
	})

	results, err := svc.Compare(context.Background(), "москва", []string{"Общий анализ крови"})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	r := results[0]
	if r.Cheapest == nil {
		t.Fatal("expected a cheapest offer")
	}
	if r.Cheapest.Provider != models.ProviderGemotest {
		t.Errorf("cheapest provider = %q, want gemotest", r.Cheapest.Provider)
	}
	if r.Cheapest.Price != 450 {
		t.Errorf("cheapest price = %v, want 450", r.Cheapest.Price)
	}

	invitro := r.Offers[models.ProviderInvitro]
	if invitro.Price == nil || *invitro.Price != 500 {
		t.Errorf("invitro price = %v, want 500", invitro.Price)
	}
	// helix has no snapshot, offer stays empty
	if r.Offers[models.ProviderHelix].Matched() {
		t.Error("expected no helix offer without a snapshot")
	}
}

func TestComparePriceTieKeepsProviderOrder(t *testing.T) {
	svc, store := newTestCompareService(t)

	mustSave(t, store, models.ProviderInvitro, "москва", []models.CatalogRecord{
		{Title: "ТТГ", Link: "https://www.invitro.ru/ttg/", Price: "520 ₽"},
	})
	mustSave(t, store, models.ProviderGemotest, "москва", []models.CatalogRecord{
		{Title: "ТТГ", Link: "https://gemotest.ru/ttg/", Price: "520 ₽"},
	})

	results, err := svc.Compare(context.Background(), "москва", []string{"ТТГ"})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	cheapest := results[0].Cheapest
	if cheapest == nil || cheapest.Provider != models.ProviderInvitro {
		t.Errorf("tie should keep invitro first, got %+v", cheapest)
	}
}

func TestCompareSynonymNormalization(t *testing.T) {
	svc, store := newTestCompareService(t)

	mustSave(t, store, models.ProviderInvitro, "москва", []models.CatalogRecord{
		{Title: "Общий анализ крови", Link: "https://www.invitro.ru/oak/", Price: "500 ₽"},
		{Title: "Глюкоза", Link: "https://www.invitro.ru/glu/", Price: "260 ₽"},
	})

	results, err := svc.Compare(context.Background(), "москва", []string{"ОАК"})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	offer := results[0].Offers[models.ProviderInvitro]
	if offer.MatchedName != "Общий анализ крови" {
		t.Errorf("matched = %q, want synonym to resolve to canonical title", offer.MatchedName)
	}
}

func TestCompareHelixLinkRewrite(t *testing.T) {
	svc, store := newTestCompareService(t)

	mustSave(t, store, models.ProviderHelix, "москва", []models.CatalogRecord{
		{Title: "Глюкоза", Link: "https://helix.ru/moskva/catalog/item/06-015", Price: "300 ₽"},
	})

	results, err := svc.Compare(context.Background(), "москва", []string{"Глюкоза"})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	offer := results[0].Offers[models.ProviderHelix]
	if offer.Link != "https://helix.ru/msk/catalog/item/06-015" {
		t.Errorf("link = %q, want city segment rewritten to msk", offer.Link)
	}
}

func TestCompareUnparsablePriceExcludedFromCheapest(t *testing.T) {
	svc, store := newTestCompareService(t)

	mustSave(t, store, models.ProviderInvitro, "москва", []models.CatalogRecord{
		{Title: "Спермограмма", Link: "https://www.invitro.ru/sp/", Price: "цена по запросу"},
	})
	mustSave(t, store, models.ProviderGemotest, "москва", []models.CatalogRecord{
		{Title: "Спермограмма", Link: "https://gemotest.ru/sp/", Price: "1 900 ₽"},
	})

	results, err := svc.Compare(context.Background(), "москва", []string{"Спермограмма"})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	r := results[0]

	invitro := r.Offers[models.ProviderInvitro]
	if invitro.MatchedName == "" {
		t.Error("expected invitro match even with unparsable price")
	}
	if invitro.Price != nil {
		t.Errorf("expected nil price for unparsable string, got %v", *invitro.Price)
	}
	if r.Cheapest == nil || r.Cheapest.Provider != models.ProviderGemotest {
		t.Errorf("cheapest should skip priceless offers, got %+v", r.Cheapest)
	}
}

func TestCompareNoMatchAnywhere(t *testing.T) {
	svc, store := newTestCompareService(t)

	mustSave(t, store, models.ProviderInvitro, "москва", []models.CatalogRecord{
		{Title: "Глюкоза", Price: "260 ₽"},
	})

	results, err := svc.Compare(context.Background(), "москва", []string{"кариотипирование"})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	r := results[0]
	if r.Cheapest != nil {
		t.Errorf("expected no cheapest offer, got %+v", r.Cheapest)
	}
	for provider, offer := range r.Offers {
		if offer.Matched() {
			t.Errorf("expected no match for %s, got %q", provider, offer.MatchedName)
		}
	}
}

func TestCompareNoSnapshotsAtAll(t *testing.T) {
	svc, _ := newTestCompareService(t)

	_, err := svc.Compare(context.Background(), "москва", []string{"ТТГ"})
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Errorf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestCompareUnknownCity(t *testing.T) {
	svc, _ := newTestCompareService(t)

	_, err := svc.Compare(context.Background(), "атлантида", []string{"ТТГ"})
	if !errors.Is(err, ErrCityNotFound) {
		t.Errorf("expected ErrCityNotFound, got %v", err)
	}
}

func TestCompareNoQueries(t *testing.T) {
	svc, _ := newTestCompareService(t)

	_, err := svc.Compare(context.Background(), "москва", nil)
	if !errors.Is(err, ErrNoQueries) {
		t.Errorf("expected ErrNoQueries, got %v", err)
	}
}

func TestCompareUnsupportedProviderSkipped(t *testing.T) {
	svc, store := newTestCompareService(t)

	// Тула supports only invitro
	mustSave(t, store, models.ProviderInvitro, "тула", []models.CatalogRecord{
		{Title: "Глюкоза", Link: "https://www.invitro.ru/glu/", Price: "240 ₽"},
	})

	results, err := svc.Compare(context.Background(), "тула", []string{"Глюкоза"})
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	r := results[0]
	if r.Cheapest == nil || r.Cheapest.Provider != models.ProviderInvitro {
		t.Errorf("cheapest = %+v, want invitro", r.Cheapest)
	}
	if r.Offers[models.ProviderGemotest].Matched() || r.Offers[models.ProviderHelix].Matched() {
		t.Error("unsupported providers must stay empty")
	}
}
