package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/gocolly/colly/v2"

	"github.com/labscan/labscan-api/internal/models"
)

const invitroBaseURL = "https://www.invitro.ru"

// InvitroScraper fetches the Invitro catalog page for a city.
type InvitroScraper struct {
	baseURL string
	opts    Options
	logger  *slog.Logger
}

// NewInvitroScraper creates an Invitro scraper pointed at the production site.
func NewInvitroScraper(opts Options, logger *slog.Logger) *InvitroScraper {
	return &InvitroScraper{
		baseURL: invitroBaseURL,
		opts:    opts.withDefaults(),
		logger:  logger.With("component", "scraper", "provider", models.ProviderInvitro),
	}
}

func (s *InvitroScraper) Provider() models.Provider {
	return models.ProviderInvitro
}

func (s *InvitroScraper) Scrape(ctx context.Context, city models.City) ([]models.CatalogRecord, error) {
	if !city.Supports(models.ProviderInvitro) {
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
	var scrapeErr error

	c.OnHTML(".analyzes-item", func(e *colly.HTMLElement) {
		select {
		case <-ctx.Done():
			return
		default:
		}

		title := e.ChildText(".analyzes-item__title a")
		if title == "" {
			return
		}
		href := e.ChildAttr(".analyzes-item__title a", "href")
		link := ""
		if href != "" {
			link = e.Request.AbsoluteURL(href)
		}
		records = append(records, models.CatalogRecord{
			Title:       title,
			Link:        link,
			Description: e.ChildText(".analyzes-item__description"),
			Price:       e.ChildText(".analyzes-item__total--sum"),
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("request to %s failed: %w", r.Request.URL, err)
	})

	pageURL := fmt.Sprintf("%s/analizes/for-doctors/%s/", s.baseURL, url.PathEscape(city.InvitroSlug))
	s.logger.Info("scraping catalog", "city", city.Slug, "url", pageURL)

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("failed to visit %s: %w", pageURL, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scrapeErr != nil {
		return nil, scrapeErr
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	s.logger.Info("scrape finished", "city", city.Slug, "records", len(records))
	return records, nil
}
