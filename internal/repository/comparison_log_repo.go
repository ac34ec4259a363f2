package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/labscan/labscan-api/internal/models"
)

// SQLiteComparisonLogRepository implements ComparisonLogRepository for SQLite/libsql.
type SQLiteComparisonLogRepository struct {
	db *sql.DB
}

// NewSQLiteComparisonLogRepository creates a new SQLite comparison log repository.
func NewSQLiteComparisonLogRepository(db *sql.DB) *SQLiteComparisonLogRepository {
	return &SQLiteComparisonLogRepository{db: db}
}

func (r *SQLiteComparisonLogRepository) Create(ctx context.Context, entry *models.ComparisonLog) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO comparison_log (id, city_slug, queries_json, query_count, matched_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.CitySlug,
		entry.QueriesJSON,
		entry.QueryCount,
		entry.MatchedCount,
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create comparison log entry: %w", err)
	}
	return nil
}

func (r *SQLiteComparisonLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.ComparisonLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, city_slug, queries_json, query_count, matched_count, created_at
		FROM comparison_log ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparison log: %w", err)
	}
	defer rows.Close()

	var entries []*models.ComparisonLog
	for rows.Next() {
		var entry models.ComparisonLog
		var createdAt string
		if err := rows.Scan(&entry.ID, &entry.CitySlug, &entry.QueriesJSON,
			&entry.QueryCount, &entry.MatchedCount, &createdAt); err != nil {
			return nil, err
		}
		entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

var _ ComparisonLogRepository = (*SQLiteComparisonLogRepository)(nil)
var _ ScrapeRunRepository = (*SQLiteScrapeRunRepository)(nil)
