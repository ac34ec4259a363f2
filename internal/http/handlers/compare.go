package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/labscan/labscan-api/internal/cities"
	"github.com/labscan/labscan-api/internal/models"
	"github.com/labscan/labscan-api/internal/service"
)

// CompareHandler handles price comparison endpoints.
type CompareHandler struct {
	compareSvc *service.CompareService
	directory  *cities.Directory
}

// NewCompareHandler creates a new compare handler.
func NewCompareHandler(compareSvc *service.CompareService, directory *cities.Directory) *CompareHandler {
	return &CompareHandler{
		compareSvc: compareSvc,
		directory:  directory,
	}
}

// CompareInput represents a comparison request.
type CompareInput struct {
	Body struct {
		City     string   `json:"city" minLength:"1" example:"Москва" doc:"City name or slug"`
		Analyses []string `json:"analyses" minItems:"1" example:"[\"ОАК\",\"Витамин D\"]" doc:"Analysis names to compare"`
	}
}

// OfferBody is one provider's offer for a query.
type OfferBody struct {
	Name  string   `json:"name,omitempty" example:"Общий анализ крови" doc:"Matched catalog entry title"`
	Price *float64 `json:"price,omitempty" example:"450" doc:"Price in rubles, absent when unparsable"`
	Link  string   `json:"link,omitempty" format:"uri" doc:"Link to the provider's catalog entry"`
}

// CheapestBody is the winning offer for a query.
type CheapestBody struct {
	Provider string  `json:"provider" example:"gemotest" doc:"Provider with the lowest price"`
	Lab      string  `json:"lab" example:"Гемотест" doc:"Provider display name"`
	Price    float64 `json:"price" example:"450"`
	Link     string  `json:"link,omitempty" format:"uri"`
}

// ComparisonBody is the comparison outcome for one query.
type ComparisonBody struct {
	Query    string               `json:"query" example:"ОАК" doc:"Original user query"`
	Offers   map[string]OfferBody `json:"offers" doc:"Per-provider offers, keyed by provider slug"`
	Cheapest *CheapestBody        `json:"cheapest,omitempty" doc:"Absent when no provider priced the analysis"`
}

// CompareOutput represents the comparison response.
type CompareOutput struct {
	Body struct {
		City    string           `json:"city" doc:"Resolved city slug"`
		Results []ComparisonBody `json:"results"`
	}
}

// Compare resolves each analysis name against provider catalogs and
// returns per-provider offers with the cheapest highlighted.
func (h *CompareHandler) Compare(ctx context.Context, input *CompareInput) (*CompareOutput, error) {
	city, ok := h.resolveCity(input.Body.City)
	if !ok {
		return nil, huma.Error404NotFound("city not found")
	}

	results, err := h.compareSvc.Compare(ctx, city.Slug, input.Body.Analyses)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCatalogUnavailable):
			return nil, huma.Error409Conflict("no catalog data for this city yet, trigger a refresh first")
		case errors.Is(err, service.ErrNoQueries):
			return nil, huma.Error422UnprocessableEntity("no analysis names given")
		default:
			return nil, huma.Error500InternalServerError("comparison failed")
		}
	}

	out := &CompareOutput{}
	out.Body.City = city.Slug
	out.Body.Results = make([]ComparisonBody, 0, len(results))
	for _, r := range results {
		out.Body.Results = append(out.Body.Results, toComparisonBody(r))
	}
	return out, nil
}

// resolveCity accepts either the catalog slug or a human-entered name.
func (h *CompareHandler) resolveCity(raw string) (models.City, bool) {
	if city, ok := h.directory.BySlug(raw); ok {
		return city, true
	}
	return h.directory.Lookup(raw)
}

func toComparisonBody(r models.ComparisonResult) ComparisonBody {
	body := ComparisonBody{
		Query:  r.Query,
		Offers: make(map[string]OfferBody, len(r.Offers)),
	}
	for provider, offer := range r.Offers {
		body.Offers[string(provider)] = OfferBody{
			Name:  offer.MatchedName,
			Price: offer.Price,
			Link:  offer.Link,
		}
	}
	if r.Cheapest != nil {
		body.Cheapest = &CheapestBody{
			Provider: string(r.Cheapest.Provider),
			Lab:      r.Cheapest.Provider.DisplayName(),
			Price:    r.Cheapest.Price,
			Link:     r.Cheapest.Link,
		}
	}
	return body
}
