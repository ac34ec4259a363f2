package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/labscan/labscan-api/internal/models"
)

// SQLiteScrapeRunRepository implements ScrapeRunRepository for SQLite/libsql.
type SQLiteScrapeRunRepository struct {
	db *sql.DB
}

// NewSQLiteScrapeRunRepository creates a new SQLite scrape run repository.
func NewSQLiteScrapeRunRepository(db *sql.DB) *SQLiteScrapeRunRepository {
	return &SQLiteScrapeRunRepository{db: db}
}

const scrapeRunColumns = `id, provider, city_slug, status, forced,
	records_found, records_added, records_updated, error_message,
	started_at, completed_at, created_at`

func (r *SQLiteScrapeRunRepository) Create(ctx context.Context, run *models.ScrapeRun) error {
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	query := `
		INSERT INTO scrape_runs (` + scrapeRunColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Provider,
		run.CitySlug,
		run.Status,
		boolToInt(run.Forced),
		run.RecordsFound,
		run.RecordsAdded,
		run.RecordsUpdated,
		nullString(run.ErrorMessage),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create scrape run: %w", err)
	}
	return nil
}

func (r *SQLiteScrapeRunRepository) GetByID(ctx context.Context, id string) (*models.ScrapeRun, error) {
	query := `SELECT ` + scrapeRunColumns + ` FROM scrape_runs WHERE id = ?`
	run, err := scanScrapeRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scrape run: %w", err)
	}
	return run, nil
}

func (r *SQLiteScrapeRunRepository) Update(ctx context.Context, run *models.ScrapeRun) error {
	query := `
		UPDATE scrape_runs SET status = ?, records_found = ?, records_added = ?,
			records_updated = ?, error_message = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		run.Status,
		run.RecordsFound,
		run.RecordsAdded,
		run.RecordsUpdated,
		nullString(run.ErrorMessage),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update scrape run: %w", err)
	}
	return nil
}

func (r *SQLiteScrapeRunRepository) ClaimPending(ctx context.Context) (*models.ScrapeRun, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	// UPDATE ... RETURNING claims and fetches atomically
	now := time.Now().Format(time.RFC3339)
	query := `
		UPDATE scrape_runs
		SET status = 'running', started_at = ?
		WHERE id = (
			SELECT id FROM scrape_runs
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT 1
		)
		RETURNING ` + scrapeRunColumns

	run, err := scanScrapeRun(tx.QueryRowContext(ctx, query, now))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim scrape run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	committed = true
	return run, nil
}

func (r *SQLiteScrapeRunRepository) HasActive(ctx context.Context, provider models.Provider, citySlug string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM scrape_runs
		WHERE provider = ? AND city_slug = ? AND status IN ('pending', 'running')
	`, provider, citySlug).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count active runs: %w", err)
	}
	return count > 0, nil
}

func (r *SQLiteScrapeRunRepository) LatestCompleted(ctx context.Context, provider models.Provider, citySlug string) (*models.ScrapeRun, error) {
	query := `
		SELECT ` + scrapeRunColumns + ` FROM scrape_runs
		WHERE provider = ? AND city_slug = ? AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1
	`
	run, err := scanScrapeRun(r.db.QueryRowContext(ctx, query, provider, citySlug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest completed run: %w", err)
	}
	return run, nil
}

func (r *SQLiteScrapeRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.ScrapeRun, error) {
	query := `SELECT ` + scrapeRunColumns + ` FROM scrape_runs ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrape runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ScrapeRun
	for rows.Next() {
		run, err := scanScrapeRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteScrapeRunRepository) MarkStaleRunningFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Format(time.RFC3339)
	res, err := r.db.ExecContext(ctx, `
		UPDATE scrape_runs
		SET status = 'failed', error_message = 'stale run from previous server instance', completed_at = ?
		WHERE status = 'running' AND started_at < ?
	`, time.Now().Format(time.RFC3339), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale runs: %w", err)
	}
	return res.RowsAffected()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanScrapeRun(s scanner) (*models.ScrapeRun, error) {
	var run models.ScrapeRun
	var forced int
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullString
	var createdAt string

	err := s.Scan(
		&run.ID,
		&run.Provider,
		&run.CitySlug,
		&run.Status,
		&forced,
		&run.RecordsFound,
		&run.RecordsAdded,
		&run.RecordsUpdated,
		&errMsg,
		&startedAt,
		&completedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	run.Forced = forced != 0
	run.ErrorMessage = errMsg.String
	run.StartedAt = parseTimePtr(startedAt)
	run.CompletedAt = parseTimePtr(completedAt)
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &run, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
