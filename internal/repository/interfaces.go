// Package repository defines repository interfaces for data access.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/labscan/labscan-api/internal/models"
)

// ScrapeRunRepository defines methods for scrape run data access.
// Pending rows double as the refresh queue the worker claims from.
type ScrapeRunRepository interface {
	Create(ctx context.Context, run *models.ScrapeRun) error
	GetByID(ctx context.Context, id string) (*models.ScrapeRun, error)
	Update(ctx context.Context, run *models.ScrapeRun) error
	// ClaimPending atomically claims the oldest pending run and returns it.
	// Returns nil, nil when nothing is pending.
	ClaimPending(ctx context.Context) (*models.ScrapeRun, error)
	// HasActive reports whether a pending or running run exists for the pair.
	HasActive(ctx context.Context, provider models.Provider, citySlug string) (bool, error)
	// LatestCompleted returns the most recent completed run for the pair,
	// or nil when the pair has never been scraped successfully.
	LatestCompleted(ctx context.Context, provider models.Provider, citySlug string) (*models.ScrapeRun, error)
	ListRecent(ctx context.Context, limit int) ([]*models.ScrapeRun, error)
	// MarkStaleRunningFailed fails runs stuck in running longer than maxAge,
	// e.g. after an unclean shutdown. Returns the number of runs failed.
	MarkStaleRunningFailed(ctx context.Context, maxAge time.Duration) (int64, error)
}

// ComparisonLogRepository defines methods for comparison usage history.
type ComparisonLogRepository interface {
	Create(ctx context.Context, entry *models.ComparisonLog) error
	ListRecent(ctx context.Context, limit int) ([]*models.ComparisonLog, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	ScrapeRun     ScrapeRunRepository
	ComparisonLog ComparisonLogRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		ScrapeRun:     NewSQLiteScrapeRunRepository(db),
		ComparisonLog: NewSQLiteComparisonLogRepository(db),
	}
}
