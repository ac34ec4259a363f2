// Package catalog persists per-city provider snapshots as CSV files and
// merges freshly scraped records into them.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labscan/labscan-api/internal/models"
)

// Sentinel errors surfaced to callers. A missing snapshot is the caller's
// cue to trigger a scrape; empty input to a merge is logged and skipped.
var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrEmptyInput       = errors.New("no records to merge")
)

// Snapshot files are UTF-8 with a byte-order mark, matching what
// spreadsheet tools expect for Cyrillic content.
const utf8BOM = "\ufeff"

var snapshotHeader = []string{"title", "link", "description", "price"}

// Store reads and writes catalog snapshots, one CSV file per
// provider+city pair under a data directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a snapshot store rooted at dir.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger.With("component", "catalog")}
}

// Path returns the snapshot file path for a provider+city pair.
func (s *Store) Path(provider models.Provider, citySlug string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", provider, citySlug))
}

// ModTime returns the snapshot's last modification time, or false when
// no snapshot exists. Freshness policy lives in the caller; the store
// only reports the timestamp.
func (s *Store) ModTime(provider models.Provider, citySlug string) (time.Time, bool) {
	info, err := os.Stat(s.Path(provider, citySlug))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Load reads a snapshot, preserving row order. Returns
// ErrSnapshotNotFound when the file does not exist. Older snapshots
// without a description column are read fine.
func (s *Store) Load(provider models.Provider, citySlug string) ([]models.CatalogRecord, error) {
	path := s.Path(provider, citySlug)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, path)
		}
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// Header-driven column mapping; the first cell may carry the BOM.
	header := rows[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["title"]; !ok {
		return nil, fmt.Errorf("snapshot %s has no title column", path)
	}

	records := make([]models.CatalogRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := models.CatalogRecord{
			Title:       cell(row, col, "title"),
			Link:        cell(row, col, "link"),
			Description: cell(row, col, "description"),
			Price:       cell(row, col, "price"),
		}
		if rec.Title == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Save writes a snapshot, replacing any existing file.
func (s *Store) Save(provider models.Provider, citySlug string, records []models.CatalogRecord) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	path := s.Path(provider, citySlug)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(utf8BOM); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(snapshotHeader); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	for _, rec := range records {
		if err := w.Write([]string{rec.Title, rec.Link, rec.Description, rec.Price}); err != nil {
			return fmt.Errorf("failed to write snapshot %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteRaw writes pre-encoded snapshot bytes verbatim, creating the data
// dir if needed. Used when restoring an archived snapshot, which is
// already in the on-disk CSV format.
func (s *Store) WriteRaw(provider models.Provider, citySlug string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	path := s.Path(provider, citySlug)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", path, err)
	}
	return nil
}

func cell(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
