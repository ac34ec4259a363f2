package handlers

import (
	"context"

	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/models"
)

// CityHandler handles city directory endpoints.
type CityHandler struct {
	directory *cities.Directory
}

// NewCityHandler creates a new city handler.
func NewCityHandler(directory *cities.Directory) *CityHandler {
	return &CityHandler{directory: directory}
}

// CityInfo describes one supported city.
type CityInfo struct {
	Name      string   `json:"name" example:"Москва" doc:"Display name of the city"`
	Slug      string   `json:"slug" example:"москва" doc:"Slug used in catalog endpoints"`
	Providers []string `json:"providers" example:"[\"invitro\",\"gemotest\",\"helix\"]" doc:"Providers operating in this city"`
}

// ListCitiesOutput represents the city list response.
type ListCitiesOutput struct {
	Body struct {
		Cities []CityInfo `json:"cities"`
	}
}

// ListCities returns every city the service knows about.
func (h *CityHandler) ListCities(ctx context.Context, input *struct{}) (*ListCitiesOutput, error) {
	all := h.directory.All()
	out := &ListCitiesOutput{}
	out.Body.Cities = make([]CityInfo, 0, len(all))
	for _, city := range all {
		info := CityInfo{
			Name:      city.Name,
			Slug:      city.Slug,
			Providers: []string{},
		}
		for _, provider := range models.Providers {
			if city.Supports(provider) {
				info.Providers = append(info.Providers, string(provider))
			}
		}
		out.Body.Cities = append(out.Body.Cities, info)
	}
	return out, nil
}
