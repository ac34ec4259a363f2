// Package routes provides shared route registration for the API.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/labscan/labscan-api/internal/http/handlers"
	"github.com/labscan/labscan-api/internal/http/mw"
	"github.com/labscan/labscan-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("LabScan API", version.Get().Short())
	cfg.Info.Description = "Price comparison for lab analyses across Invitro, Gemotest and Helix."

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Comparison", Description: "Price comparison across providers"},
		{Name: "Cities", Description: "Supported cities"},
		{Name: "Catalogs", Description: "Catalog snapshots and refresh runs"},
		{Name: "Health", Description: "System health and status"},
	}

	return cfg
}

// Handlers groups the handler instances the routes need.
type Handlers struct {
	City    *handlers.CityHandler
	Compare *handlers.CompareHandler
	Catalog *handlers.CatalogHandler
}

// Register registers all API routes with the given Huma API instance.
func Register(api huma.API, h *Handlers) {
	mw.Get(api, "/api/v1/health", handlers.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	mw.Get(api, "/api/v1/cities", h.City.ListCities,
		mw.WithTags("Cities"),
		mw.WithSummary("List supported cities"),
		mw.WithOperationID("listCities"))

	mw.Post(api, "/api/v1/compare", h.Compare.Compare,
		mw.WithTags("Comparison"),
		mw.WithSummary("Compare analysis prices"),
		mw.WithDescription("Matches each analysis name against provider catalogs for a city and returns per-provider offers with the cheapest highlighted."),
		mw.WithOperationID("compareAnalyses"))

	mw.Get(api, "/api/v1/catalogs/{city}", h.Catalog.GetCatalogStatus,
		mw.WithTags("Catalogs"),
		mw.WithSummary("Get catalog snapshot status"),
		mw.WithOperationID("getCatalogStatus"))

	mw.Post(api, "/api/v1/catalogs/{city}/refresh", h.Catalog.RefreshCatalogs,
		mw.WithTags("Catalogs"),
		mw.WithSummary("Refresh catalog snapshots"),
		mw.WithDescription("Enqueues scrape runs for stale provider snapshots. Runs execute in the background."),
		mw.WithOperationID("refreshCatalogs"))

	mw.Get(api, "/api/v1/runs", h.Catalog.ListRuns,
		mw.WithTags("Catalogs"),
		mw.WithSummary("List recent scrape runs"),
		mw.WithOperationID("listRuns"))

	mw.Get(api, "/api/v1/runs/{id}", h.Catalog.GetRun,
		mw.WithTags("Catalogs"),
		mw.WithSummary("Get one scrape run"),
		mw.WithOperationID("getRun"))
}

// RegisterProbes registers Kubernetes probes on a hidden API so they stay
// out of the OpenAPI document.
func RegisterProbes(api huma.API, readyz *handlers.ReadyzHandler) {
	mw.HiddenGet(api, "/healthz", handlers.Livez)
	mw.HiddenGet(api, "/readyz", readyz.Readyz)
}
