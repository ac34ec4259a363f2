// Package scrape fetches laboratory catalogs from provider sites.
package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/labscan/labscan-api/internal/models"
)

var (
	// ErrCityNotSupported is returned when the provider has no presence
	// in the requested city.
	ErrCityNotSupported = errors.New("provider does not operate in this city")
	// ErrNoRecords is returned when a scrape completed but yielded
	// nothing, usually a sign of a site layout change.
	ErrNoRecords = errors.New("scrape returned no records")
)

// Scraper fetches the full catalog for one city.
type Scraper interface {
	Provider() models.Provider
	Scrape(ctx context.Context, city models.City) ([]models.CatalogRecord, error)
}

// Options carries politeness settings shared by all scrapers.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	Delay     time.Duration
}

// DefaultOptions returns conservative defaults used when config is absent.
func DefaultOptions() Options {
	return Options{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		Timeout:   10 * time.Second,
		Delay:     500 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.UserAgent == "" {
		o.UserAgent = def.UserAgent
	}
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	return o
}
