package repository

import (
	"context"
	"testing"
	"time"

	"github.com/labscan/labscan-api/internal/models"
)

// ========================================
// ComparisonLog repository tests
// ========================================

func TestComparisonLogCreateAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteComparisonLogRepository(db)
	ctx := context.Background()

	entry := &models.ComparisonLog{
		CitySlug:     "moskva",
		QueriesJSON:  `["оак","ттг"]`,
		QueryCount:   2,
		MatchedCount: 2,
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if entry.ID == "" {
		t.Fatal("expected generated ID")
	}

	entries, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.CitySlug != "moskva" {
		t.Errorf("city = %q, want moskva", got.CitySlug)
	}
	if got.QueriesJSON != `["оак","ттг"]` {
		t.Errorf("queries = %q", got.QueriesJSON)
	}
	if got.QueryCount != 2 || got.MatchedCount != 2 {
		t.Errorf("counts not persisted: %+v", got)
	}
}

func TestComparisonLogListRecentOrderAndLimit(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteComparisonLogRepository(db)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		entry := &models.ComparisonLog{
			CitySlug:    "tula",
			QueriesJSON: `["глюкоза"]`,
			QueryCount:  1,
			CreatedAt:   time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	entries, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].CreatedAt.After(entries[0].CreatedAt) {
		t.Error("expected entries in descending created_at order")
	}
}
