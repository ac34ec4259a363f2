package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gocolly/colly/v2"

	"github.com/labscan/labscan-api/internal/models"
)

const gemotestBaseURL = "https://gemotest.ru"

// gemotestSections lists the catalog sections crawled per city. The
// root catalog page only shows a subset, so the blood-work sections
// are fetched explicitly as well.
var gemotestSections = []string{
	"",
	"issledovaniya-krovi/gormony/",
	"issledovaniya-krovi/biokhimiya/",
}

// GemotestScraper fetches the Gemotest catalog sections for a city.
type GemotestScraper struct {
	baseURL string
	opts    Options
	logger  *slog.Logger
}

// NewGemotestScraper creates a Gemotest scraper pointed at the production site.
func NewGemotestScraper(opts Options, logger *slog.Logger) *GemotestScraper {
	return &GemotestScraper{
		baseURL: gemotestBaseURL,
		opts:    opts.withDefaults(),
		logger:  logger.With("component", "scraper", "provider", models.ProviderGemotest),
	}
}

func (s *GemotestScraper) Provider() models.Provider {
	return models.ProviderGemotest
}

func (s *GemotestScraper) Scrape(ctx context.Context, city models.City) ([]models.CatalogRecord, error) {
	if !city.Supports(models.ProviderGemotest) {
		return nil, ErrCityNotSupported
	}

	c := colly.NewCollector(
		colly.UserAgent(s.opts.UserAgent),
	)
	c.SetRequestTimeout(s.opts.Timeout)
	if s.opts.Delay > 0 {
		_ = c.Limit(&colly.LimitRule{
			DomainGlob: "*",
			Delay:      s.opts.Delay,
		})
	}

	var records []models.CatalogRecord
	seen := make(map[string]bool)

	c.OnHTML(".analysis-item", func(e *colly.HTMLElement) {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Catalog cards carry name and price as GTM data attributes.
		title := e.Attr("data-eec-name")
		if title == "" || seen[title] {
			return
		}
		seen[title] = true

		link := ""
		if href := e.ChildAttr("a.analysis-item__title", "href"); href != "" {
			link = e.Request.AbsoluteURL(href)
		}
		price := e.Attr("data-eec-price")
		if price != "" {
			price += " ₽"
		}
		records = append(records, models.CatalogRecord{
			Title: title,
			Link:  link,
			Price: price,
		})
	})

	var lastErr error
	c.OnError(func(r *colly.Response, err error) {
		lastErr = fmt.Errorf("request to %s failed: %w", r.Request.URL, err)
	})

	base := fmt.Sprintf("%s/%s/catalog/", s.baseURL, city.GemotestSlug)
	for _, section := range gemotestSections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageURL := base + section
		s.logger.Info("scraping catalog section", "city", city.Slug, "url", pageURL)
		if err := c.Visit(pageURL); err != nil {
			// One failed section does not abort the whole scrape.
			s.logger.Warn("section fetch failed", "url", pageURL, "error", err)
		}
	}
	c.Wait()

	if len(records) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, ErrNoRecords
	}

	s.logger.Info("scrape finished", "city", city.Slug, "records", len(records))
	return records, nil
}
