package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/models"
)

const (
	helixSiteURL = "https://helix.ru"
	helixAPIURL  = "https://helix.ru/api/catalog/search"

	// Category 190 is the lab-analyses branch of the Helix catalog.
	helixCategoryID = 190
	helixPageSize   = 12
)

// HelixScraper pages through the Helix catalog JSON API for a city.
type HelixScraper struct {
	apiURL  string
	siteURL string
	aliases *cities.HelixCities
	client  *http.Client
	opts    Options
	logger  *slog.Logger
}

// NewHelixScraper creates a Helix scraper pointed at the production API.
func NewHelixScraper(opts Options, aliases *cities.HelixCities, logger *slog.Logger) *HelixScraper {
	opts = opts.withDefaults()
	return &HelixScraper{
		apiURL:  helixAPIURL,
		siteURL: helixSiteURL,
		aliases: aliases,
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		logger:  logger.With("component", "scraper", "provider", models.ProviderHelix),
	}
}

func (s *HelixScraper) Provider() models.Provider {
	return models.ProviderHelix
}

type helixPage struct {
	Total        int `json:"total"`
	CatalogItems []struct {
		HxID  string      `json:"hxid"`
		Title string      `json:"title"`
		Price json.Number `json:"price"`
	} `json:"catalogItems"`
}

func (s *HelixScraper) Scrape(ctx context.Context, city models.City) ([]models.CatalogRecord, error) {
	if !city.Supports(models.ProviderHelix) {
		return nil, ErrCityNotSupported
	}

	alias, ok := s.aliases.Alias(city.HelixID)
	if !ok {
		return nil, fmt.Errorf("no helix alias for city id %s", city.HelixID)
	}

	var records []models.CatalogRecord
	skip := 0
	total := -1

	for total < 0 || skip < total {
		page, err := s.fetchPage(ctx, city.HelixID, skip)
		if err != nil {
			return nil, err
		}
		total = page.Total

		if len(page.CatalogItems) == 0 {
			break
		}
		for _, item := range page.CatalogItems {
			if item.Title == "" {
				continue
			}
			records = append(records, models.CatalogRecord{
				Title: item.Title,
				Link:  fmt.Sprintf("%s/%s/catalog/item/%s", s.siteURL, alias, item.HxID),
				Price: formatHelixPrice(item.Price),
			})
		}
		skip += helixPageSize
	}

	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	s.logger.Info("scrape finished", "city", city.Slug, "records", len(records))
	return records, nil
}

func (s *HelixScraper) fetchPage(ctx context.Context, cityID string, skip int) (*helixPage, error) {
	q := url.Values{}
	q.Set("cityId", cityID)
	q.Set("filter.categoryId", strconv.Itoa(helixCategoryID))
	q.Set("take", strconv.Itoa(helixPageSize))
	q.Set("skip", strconv.Itoa(skip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build helix request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("helix request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix returned status %d", resp.StatusCode)
	}

	var page helixPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode helix response: %w", err)
	}
	return &page, nil
}

func formatHelixPrice(n json.Number) string {
	if n.String() == "" {
		return ""
	}
	if f, err := n.Float64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64) + " ₽"
	}
	return n.String() + " ₽"
}
