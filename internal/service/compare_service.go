package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/labscan/labscan-api/internal/catalog"
	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/match"
	"github.com/labscan/labscan-api/internal/models"
	"github.com/labscan/labscan-api/internal/repository"
)

var (
	ErrCityNotFound = errors.New("city not found")
	// ErrCatalogUnavailable is returned when no provider has a snapshot
	// for the requested city.
	ErrCatalogUnavailable = errors.New("no catalog data for city")
	ErrNoQueries          = errors.New("no analysis names given")
)

// CompareService matches analysis names against provider catalogs and
// picks the cheapest offer per query.
type CompareService struct {
	store       *catalog.Store
	directory   *cities.Directory
	helixCities *cities.HelixCities
	normalizer  *match.Normalizer
	repos       *repository.Repositories
	logger      *slog.Logger
}

// NewCompareService creates a compare service.
func NewCompareService(
	store *catalog.Store,
	directory *cities.Directory,
	helixCities *cities.HelixCities,
	normalizer *match.Normalizer,
	repos *repository.Repositories,
	logger *slog.Logger,
) *CompareService {
	return &CompareService{
		store:       store,
		directory:   directory,
		helixCities: helixCities,
		normalizer:  normalizer,
		repos:       repos,
		logger:      logger.With("component", "compare"),
	}
}

// providerCatalog is one loaded snapshot indexed for matching.
type providerCatalog struct {
	titles  []string                       // lowered titles, snapshot order
	byTitle map[string]models.CatalogRecord // lowered title -> first record
}

// Compare resolves each query against every available provider snapshot.
// Providers without a snapshot are skipped; only when no snapshot exists
// at all is ErrCatalogUnavailable returned.
func (s *CompareService) Compare(ctx context.Context, citySlug string, queries []string) ([]models.ComparisonResult, error) {
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}
	city, ok := s.directory.BySlug(citySlug)
	if !ok {
		return nil, ErrCityNotFound
	}

	catalogs := make(map[models.Provider]*providerCatalog)
	for _, provider := range models.Providers {
		if !city.Supports(provider) {
			continue
		}
		records, err := s.store.Load(provider, city.Slug)
		if err != nil {
			if errors.Is(err, catalog.ErrSnapshotNotFound) {
				s.logger.Warn("snapshot missing, provider skipped",
					"provider", provider, "city", city.Slug)
				continue
			}
			return nil, err
		}
		catalogs[provider] = indexCatalog(records)
	}
	if len(catalogs) == 0 {
		return nil, ErrCatalogUnavailable
	}

	results := make([]models.ComparisonResult, 0, len(queries))
	matched := 0
	for _, query := range queries {
		result := s.compareOne(city, catalogs, query)
		for _, offer := range result.Offers {
			if offer.Matched() {
				matched++
				break
			}
		}
		results = append(results, result)
	}

	s.recordUsage(ctx, city.Slug, queries, matched)
	return results, nil
}

func (s *CompareService) compareOne(city models.City, catalogs map[models.Provider]*providerCatalog, query string) models.ComparisonResult {
	normalized := s.normalizer.Normalize(query)

	result := models.ComparisonResult{
		Query:  strings.TrimSpace(query),
		Offers: make(map[models.Provider]models.ProviderOffer),
	}

	for _, provider := range models.Providers {
		cat, ok := catalogs[provider]
		if !ok {
			result.Offers[provider] = models.ProviderOffer{}
			continue
		}

		title, ok := match.BestMatch(normalized, cat.titles)
		if !ok {
			result.Offers[provider] = models.ProviderOffer{}
			continue
		}
		record := cat.byTitle[title]

		offer := models.ProviderOffer{
			MatchedName: record.Title,
			Link:        record.Link,
		}
		if price, ok := match.ParsePrice(record.Price); ok {
			offer.Price = &price
		}
		if provider == models.ProviderHelix && offer.Link != "" {
			offer.Link = s.helixCities.RewriteLink(offer.Link, city.HelixID)
		}
		result.Offers[provider] = offer
	}

	// Providers order breaks price ties.
	for _, provider := range models.Providers {
		offer := result.Offers[provider]
		if offer.Price == nil {
			continue
		}
		if result.Cheapest == nil || *offer.Price < result.Cheapest.Price {
			result.Cheapest = &models.CheapestOffer{
				Provider: provider,
				Price:    *offer.Price,
				Link:     offer.Link,
			}
		}
	}
	return result
}

func indexCatalog(records []models.CatalogRecord) *providerCatalog {
	cat := &providerCatalog{
		byTitle: make(map[string]models.CatalogRecord, len(records)),
	}
	for _, r := range records {
		lower := strings.ToLower(r.Title)
		if _, exists := cat.byTitle[lower]; exists {
			continue
		}
		cat.titles = append(cat.titles, lower)
		cat.byTitle[lower] = r
	}
	return cat
}

// recordUsage writes a comparison log row. Failures are logged, not returned:
// usage history must never break a comparison.
func (s *CompareService) recordUsage(ctx context.Context, citySlug string, queries []string, matched int) {
	if s.repos == nil {
		return
	}
	queriesJSON, err := json.Marshal(queries)
	if err != nil {
		return
	}
	entry := &models.ComparisonLog{
		CitySlug:     citySlug,
		QueriesJSON:  string(queriesJSON),
		QueryCount:   len(queries),
		MatchedCount: matched,
	}
	if err := s.repos.ComparisonLog.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record comparison", "error", err)
	}
}
