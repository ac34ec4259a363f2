package cities

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/labscan/labscan-api/internal/models"
)

// HelixCities indexes the Helix city alias table. Helix catalog links
// embed a city path segment that must be swapped for the per-city alias,
// the provider's own routing scheme.
type HelixCities struct {
	byID map[string]models.HelixCity
}

// helixCityJSON tolerates numeric or string ids, since the table comes
// from the provider's API.
type helixCityJSON struct {
	ID    json.Number `json:"id"`
	Name  string      `json:"name"`
	Alias string      `json:"alias"`
}

// LoadHelixCities reads the alias table from a JSON array of
// {id, name, alias} records.
func LoadHelixCities(path string) (*HelixCities, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read helix cities file: %w", err)
	}

	var raw []helixCityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse helix cities file %s: %w", path, err)
	}

	cities := make([]models.HelixCity, 0, len(raw))
	for _, r := range raw {
		cities = append(cities, models.HelixCity{
			ID:    r.ID.String(),
			Name:  r.Name,
			Alias: r.Alias,
		})
	}
	return NewHelixCities(cities), nil
}

// NewHelixCities builds the index from alias records.
func NewHelixCities(cities []models.HelixCity) *HelixCities {
	h := &HelixCities{byID: make(map[string]models.HelixCity, len(cities))}
	for _, c := range cities {
		h.byID[c.ID] = c
	}
	return h
}

// Alias returns the routing alias for a Helix city ID. An empty alias
// falls back to a slug derived from the city name.
func (h *HelixCities) Alias(cityID string) (string, bool) {
	c, ok := h.byID[cityID]
	if !ok {
		return "", false
	}
	if alias := strings.TrimSpace(c.Alias); alias != "" {
		return alias, true
	}
	if c.Name == "" {
		return "", false
	}
	return strings.ReplaceAll(strings.ToLower(c.Name), " ", "-"), true
}

// RewriteLink swaps the city path segment of a Helix catalog link
// (https://helix.ru/<city>/catalog/item/<id>) for the alias of the given
// city ID. Rewriting is best-effort: a missing alias or a link without
// the expected path shape returns the raw link unchanged.
func (h *HelixCities) RewriteLink(rawLink, cityID string) string {
	alias, ok := h.Alias(cityID)
	if !ok {
		return rawLink
	}

	parts := strings.Split(rawLink, "/")
	// parts[3] is the city segment: [scheme:, "", host, city, rest...]
	if len(parts) <= 3 {
		return rawLink
	}
	parts[3] = alias
	return strings.Join(parts, "/")
}
