package catalog

import (
	"errors"

	"github.com/labscan/labscan-api/internal/models"
)

// MergeStats reports what a merge changed.
type MergeStats struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// Merge reconciles freshly scraped records into an existing snapshot.
//
// Records are keyed by title. For a known title only the price is
// mutable: a changed price is taken from the new record, everything else
// keeps the stored value. Unknown titles are appended in input order.
// Titles present only in the existing snapshot are retained unchanged;
// nothing is ever deleted. Existing row order is preserved, so repeated
// merges with the same input are no-ops.
func Merge(newRecords, existing []models.CatalogRecord) ([]models.CatalogRecord, MergeStats) {
	var stats MergeStats

	merged := make([]models.CatalogRecord, len(existing))
	copy(merged, existing)

	byTitle := make(map[string]int, len(merged))
	for i, rec := range merged {
		byTitle[rec.Title] = i
	}

	for _, rec := range newRecords {
		if rec.Title == "" {
			continue
		}
		if i, ok := byTitle[rec.Title]; ok {
			if merged[i].Price != rec.Price {
				merged[i].Price = rec.Price
				stats.Updated++
			}
			continue
		}
		byTitle[rec.Title] = len(merged)
		merged = append(merged, rec)
		stats.Added++
	}

	return merged, stats
}

// MergeAndSave loads the existing snapshot (a missing one means first
// write), merges the new records into it, and writes the result back.
// Empty input returns ErrEmptyInput without touching the file.
//
// The read-modify-write cycle has no transactional guarantee, so calls
// for the same provider+city must be serialized by the caller.
func (s *Store) MergeAndSave(provider models.Provider, citySlug string, newRecords []models.CatalogRecord) (MergeStats, error) {
	if len(newRecords) == 0 {
		s.logger.Warn("nothing to merge", "provider", provider, "city", citySlug)
		return MergeStats{}, ErrEmptyInput
	}

	existing, err := s.Load(provider, citySlug)
	if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return MergeStats{}, err
	}

	merged, stats := Merge(newRecords, existing)
	if err := s.Save(provider, citySlug, merged); err != nil {
		return MergeStats{}, err
	}

	s.logger.Info("snapshot merged",
		"provider", provider,
		"city", citySlug,
		"records", len(merged),
		"added", stats.Added,
		"updated", stats.Updated,
	)
	return stats, nil
}
