// Package cities loads the city directory and the Helix city alias table.
// Both are static configuration: loaded once at process start and passed
// explicitly to the components that need them.
package cities

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/labscan/labscan-api/internal/models"
)

// Directory maps user-supplied city names to provider slugs and IDs.
type Directory struct {
	cities []models.City
	byKey  map[string]models.City // normalized name -> city
	bySlug map[string]models.City // file slug -> city
}

// LoadDirectory reads the city directory from a JSON array of city records.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cities file: %w", err)
	}

	var cities []models.City
	if err := json.Unmarshal(data, &cities); err != nil {
		return nil, fmt.Errorf("failed to parse cities file %s: %w", path, err)
	}

	return NewDirectory(cities), nil
}

// NewDirectory builds a directory from city records. Records missing a
// file slug get one derived from the name.
func NewDirectory(cities []models.City) *Directory {
	d := &Directory{
		byKey:  make(map[string]models.City, len(cities)),
		bySlug: make(map[string]models.City, len(cities)),
	}
	for _, c := range cities {
		if c.Slug == "" {
			c.Slug = FileSlug(c.Name)
		}
		d.cities = append(d.cities, c)
		d.byKey[cityKey(c.Name)] = c
		d.bySlug[c.Slug] = c
	}
	return d
}

// Lookup finds a city by user input, tolerating case, spacing,
// hyphenation, and ё/е substitution ("Нижний Новгород" matches
// "нижний-новгород" and "нижнии новгород" typed with ё quirks).
func (d *Directory) Lookup(name string) (models.City, bool) {
	c, ok := d.byKey[cityKey(name)]
	return c, ok
}

// BySlug finds a city by its filename-safe slug.
func (d *Directory) BySlug(slug string) (models.City, bool) {
	c, ok := d.bySlug[slug]
	return c, ok
}

// All returns every known city in load order.
func (d *Directory) All() []models.City {
	return d.cities
}

// cityKey normalizes a city name for lookup: lower-cased, spaces and
// hyphens removed, ё folded to е.
func cityKey(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "ё", "е")
	return s
}

// FileSlug derives a filename-safe slug from a city name: lower-cased,
// spaces to hyphens, ё folded to е.
func FileSlug(name string) string {
	s := strings.ToLower(name)
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "ё", "е")
	return s
}
