package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/models"
)

func testHelixAliases() *cities.HelixCities {
	return cities.NewHelixCities([]models.HelixCity{
		{ID: "330", Name: "Москва", Alias: "msk"},
	})
}

func TestHelixScrapePagination(t *testing.T) {
	items := make([]map[string]any, 0, 15)
	for i := 0; i < 15; i++ {
		items = append(items, map[string]any{
			"hxid":  fmt.Sprintf("06-%03d", i),
			"title": fmt.Sprintf("Анализ %d", i),
			"price": 100 + i,
		})
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("cityId"); got != "330" {
			t.Errorf("cityId = %q, want 330", got)
		}
		if got := r.URL.Query().Get("filter.categoryId"); got != "190" {
			t.Errorf("categoryId = %q, want 190", got)
		}
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		take, _ := strconv.Atoi(r.URL.Query().Get("take"))

		end := skip + take
		if end > len(items) {
			end = len(items)
		}
		page := []map[string]any{}
		if skip < len(items) {
			page = items[skip:end]
		}
		json.NewEncoder(w).Encode(map[string]any{
			"total":        len(items),
			"catalogItems": page,
		})
	}))
	defer srv.Close()

	s := NewHelixScraper(Options{}, testHelixAliases(), slog.Default())
	s.apiURL = srv.URL
	s.siteURL = "https://helix.ru"

	records, err := s.Scrape(context.Background(), testCity())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(records) != 15 {
		t.Fatalf("expected 15 records across pages, got %d", len(records))
	}
	if records[0].Title != "Анализ 0" {
		t.Errorf("title = %q", records[0].Title)
	}
	if records[0].Link != "https://helix.ru/msk/catalog/item/06-000" {
		t.Errorf("link = %q", records[0].Link)
	}
	if records[0].Price != "100 ₽" {
		t.Errorf("price = %q", records[0].Price)
	}
	if records[14].Title != "Анализ 14" {
		t.Errorf("last title = %q", records[14].Title)
	}
}

func TestHelixScrapeUnsupportedCity(t *testing.T) {
	s := NewHelixScraper(Options{}, testHelixAliases(), slog.Default())

	city := testCity()
	city.HelixID = "-"
	if _, err := s.Scrape(context.Background(), city); !errors.Is(err, ErrCityNotSupported) {
		t.Errorf("expected ErrCityNotSupported, got %v", err)
	}
}

func TestHelixScrapeUnknownAlias(t *testing.T) {
	s := NewHelixScraper(Options{}, testHelixAliases(), slog.Default())

	city := testCity()
	city.HelixID = "999"
	if _, err := s.Scrape(context.Background(), city); err == nil {
		t.Error("expected error for unknown city id")
	}
}

func TestHelixScrapeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHelixScraper(Options{}, testHelixAliases(), slog.Default())
	s.apiURL = srv.URL

	if _, err := s.Scrape(context.Background(), testCity()); err == nil {
		t.Error("expected error on HTTP 500")
	}
}

func TestHelixScrapeEmptyCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"total": 0, "catalogItems": []any{}})
	}))
	defer srv.Close()

	s := NewHelixScraper(Options{}, testHelixAliases(), slog.Default())
	s.apiURL = srv.URL

	if _, err := s.Scrape(context.Background(), testCity()); !errors.Is(err, ErrNoRecords) {
		t.Errorf("expected ErrNoRecords, got %v", err)
	}
}

func TestFormatHelixPrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"100", "100 ₽"},
		{"450.5", "450.5 ₽"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := formatHelixPrice(json.Number(tt.in)); got != tt.want {
			t.Errorf("formatHelixPrice(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
