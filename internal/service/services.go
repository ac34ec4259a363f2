package service

import (
	"fmt"
	"log/slog"

	"github.com/labscan/labscan-api/internal/catalog"
	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/config"
	"github.com/labscan/labscan-api/internal/match"
	"github.com/labscan/labscan-api/internal/repository"
	"github.com/labscan/labscan-api/internal/scrape"
)

// Services holds all service instances.
type Services struct {
	Compare *CompareService
	Refresh *RefreshService
	Storage *StorageService

	Directory   *cities.Directory
	HelixCities *cities.HelixCities
	Store       *catalog.Store
}

// NewServices loads reference data and creates all service instances.
func NewServices(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	directory, err := cities.LoadDirectory(cfg.CitiesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load city directory: %w", err)
	}
	helixCities, err := cities.LoadHelixCities(cfg.HelixCitiesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load helix cities: %w", err)
	}
	synonyms, err := match.LoadSynonyms(cfg.SynonymsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load synonyms: %w", err)
	}

	store := catalog.NewStore(cfg.DataDir, logger)

	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	scrapeOpts := scrape.Options{
		UserAgent: cfg.ScrapeUserAgent,
		Timeout:   cfg.ScrapeTimeout,
		Delay:     cfg.ScrapeDelay,
	}
	scrapers := []scrape.Scraper{
		scrape.NewInvitroScraper(scrapeOpts, logger),
		scrape.NewGemotestScraper(scrapeOpts, logger),
		scrape.NewHelixScraper(scrapeOpts, helixCities, logger),
	}

	compareSvc := NewCompareService(store, directory, helixCities,
		match.NewNormalizer(synonyms), repos, logger)
	refreshSvc := NewRefreshService(store, directory, scrapers, repos,
		storageSvc, cfg.SnapshotMaxAge, logger)

	return &Services{
		Compare:     compareSvc,
		Refresh:     refreshSvc,
		Storage:     storageSvc,
		Directory:   directory,
		HelixCities: helixCities,
		Store:       store,
	}, nil
}
