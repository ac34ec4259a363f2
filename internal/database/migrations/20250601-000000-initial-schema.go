package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250601-000000",
		Description: "Initial schema",
		Up: []string{
			// Scrape runs - one row per scrape-and-merge cycle of a
			// provider+city snapshot. Snapshots themselves live on disk
			// as CSV; this table is the history and the refresh queue.
			`CREATE TABLE IF NOT EXISTS scrape_runs (
				id TEXT PRIMARY KEY,
				provider TEXT NOT NULL,
				city_slug TEXT NOT NULL,
				status TEXT NOT NULL,
				forced INTEGER NOT NULL DEFAULT 0,
				records_found INTEGER NOT NULL DEFAULT 0,
				records_added INTEGER NOT NULL DEFAULT 0,
				records_updated INTEGER NOT NULL DEFAULT 0,
				error_message TEXT,
				started_at TEXT,
				completed_at TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_scrape_runs_status ON scrape_runs(status)`,
			`CREATE INDEX IF NOT EXISTS idx_scrape_runs_pair ON scrape_runs(provider, city_slug)`,

			// Comparison log - usage history of comparison queries
			`CREATE TABLE IF NOT EXISTS comparison_log (
				id TEXT PRIMARY KEY,
				city_slug TEXT NOT NULL,
				queries_json TEXT NOT NULL,
				query_count INTEGER NOT NULL,
				matched_count INTEGER NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_comparison_log_city ON comparison_log(city_slug)`,
		},
	})
}
