// Package models defines the domain models for the application.
package models

import (
	"time"
)

// Provider identifies one of the three lab catalog sources.
type Provider string

const (
	ProviderInvitro  Provider = "invitro"
	ProviderGemotest Provider = "gemotest"
	ProviderHelix    Provider = "helix"
)

// Providers lists all providers in their fixed precedence order.
// This order breaks exact price ties in cheapest selection.
var Providers = []Provider{ProviderInvitro, ProviderGemotest, ProviderHelix}

// DisplayName returns the user-facing provider name.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderInvitro:
		return "Инвитро"
	case ProviderGemotest:
		return "Гемотест"
	case ProviderHelix:
		return "Хеликс"
	default:
		return string(p)
	}
}

// CatalogRecord is one test offered by one provider in one city.
// Records are keyed by Title: case-sensitive as stored, case-insensitive
// for lookup. A snapshot accumulates records monotonically; entries that
// disappear from the live site simply stop being refreshed.
type CatalogRecord struct {
	Title       string `json:"title"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"` // raw provider text, e.g. "450,00 ₽"
}

// ProviderOffer is the per-provider slice of a comparison result.
// A zero MatchedName means the provider had no sufficiently similar title.
type ProviderOffer struct {
	MatchedName string   `json:"matched_name,omitempty"`
	Price       *float64 `json:"price,omitempty"` // nil when absent or unparsable
	Link        string   `json:"link,omitempty"`
}

// Matched reports whether the provider catalog produced a title match.
func (o ProviderOffer) Matched() bool {
	return o.MatchedName != ""
}

// CheapestOffer names the provider with the lowest parsed price.
type CheapestOffer struct {
	Provider Provider `json:"provider"`
	Price    float64  `json:"price"`
	Link     string   `json:"link,omitempty"`
}

// ComparisonResult is the outcome for a single requested analysis name.
// Derived, never persisted; recomputed on every query.
type ComparisonResult struct {
	Query    string                     `json:"query"`
	Offers   map[Provider]ProviderOffer `json:"offers"`
	Cheapest *CheapestOffer             `json:"cheapest,omitempty"` // nil = no data
}

// City maps a canonical city name to provider-specific slugs/IDs and a
// filename-safe slug. A "-" or empty slug means the provider does not
// serve that city.
type City struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"` // filename-safe, e.g. "nizhnij-novgorod"
	InvitroSlug  string `json:"invitro,omitempty"`
	GemotestSlug string `json:"gemotest,omitempty"`
	HelixID      string `json:"helix,omitempty"`
}

// Supports reports whether the given provider serves this city.
func (c City) Supports(p Provider) bool {
	switch p {
	case ProviderInvitro:
		return c.InvitroSlug != "" && c.InvitroSlug != "-"
	case ProviderGemotest:
		return c.GemotestSlug != "" && c.GemotestSlug != "-"
	case ProviderHelix:
		return c.HelixID != "" && c.HelixID != "-"
	default:
		return false
	}
}

// HelixCity is one entry of the Helix city alias table, used to rewrite
// catalog links to the city-specific routing segment.
type HelixCity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

// RunStatus represents the status of a scrape run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun records one scrape-and-merge cycle for a provider+city pair.
type ScrapeRun struct {
	ID             string     `json:"id"`
	Provider       Provider   `json:"provider"`
	CitySlug       string     `json:"city_slug"`
	Status         RunStatus  `json:"status"`
	Forced         bool       `json:"forced"` // requested explicitly, not by staleness
	RecordsFound   int        `json:"records_found"`
	RecordsAdded   int        `json:"records_added"`
	RecordsUpdated int        `json:"records_updated"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ComparisonLog records one comparison request for usage history.
type ComparisonLog struct {
	ID           string    `json:"id"`
	CitySlug     string    `json:"city_slug"`
	QueriesJSON  string    `json:"queries_json"` // JSON array of the raw analysis names
	QueryCount   int       `json:"query_count"`
	MatchedCount int       `json:"matched_count"`
	CreatedAt    time.Time `json:"created_at"`
}
