package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/labscan/labscan-api/internal/models"
	"github.com/labscan/labscan-api/internal/repository"
	"github.com/labscan/labscan-api/internal/service"
)

// CatalogHandler handles catalog snapshot and scrape run endpoints.
type CatalogHandler struct {
	refreshSvc *service.RefreshService
	runRepo    repository.ScrapeRunRepository
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(refreshSvc *service.RefreshService, runRepo repository.ScrapeRunRepository) *CatalogHandler {
	return &CatalogHandler{
		refreshSvc: refreshSvc,
		runRepo:    runRepo,
	}
}

// GetCatalogStatusInput identifies a city by slug.
type GetCatalogStatusInput struct {
	City string `path:"city" example:"москва" doc:"City slug"`
}

// ProviderCatalogBody pairs snapshot state with the last completed run.
type ProviderCatalogBody struct {
	service.ProviderStatus
	LastRun *ScrapeRunBody `json:"last_run,omitempty" doc:"Most recent completed scrape run for this provider"`
}

// GetCatalogStatusOutput represents per-provider snapshot state.
type GetCatalogStatusOutput struct {
	Body struct {
		City      string                `json:"city"`
		Providers []ProviderCatalogBody `json:"providers"`
	}
}

// GetCatalogStatus reports snapshot freshness and the last completed
// scrape run for every provider in a city.
func (h *CatalogHandler) GetCatalogStatus(ctx context.Context, input *GetCatalogStatusInput) (*GetCatalogStatusOutput, error) {
	statuses, err := h.refreshSvc.Status(input.City)
	if err != nil {
		if errors.Is(err, service.ErrCityNotFound) {
			return nil, huma.Error404NotFound("city not found")
		}
		return nil, huma.Error500InternalServerError("failed to read catalog status")
	}

	out := &GetCatalogStatusOutput{}
	out.Body.City = input.City
	out.Body.Providers = make([]ProviderCatalogBody, 0, len(statuses))
	for _, status := range statuses {
		body := ProviderCatalogBody{ProviderStatus: status}
		if status.Supported {
			run, err := h.runRepo.LatestCompleted(ctx, status.Provider, input.City)
			if err != nil {
				return nil, huma.Error500InternalServerError("failed to read catalog status")
			}
			if run != nil {
				rb := toScrapeRunBody(run)
				body.LastRun = &rb
			}
		}
		out.Body.Providers = append(out.Body.Providers, body)
	}
	return out, nil
}

// RefreshCatalogsInput triggers a refresh for one city.
type RefreshCatalogsInput struct {
	City string `path:"city" example:"москва" doc:"City slug"`
	Body struct {
		Force bool `json:"force,omitempty" doc:"Re-scrape even when snapshots are fresh"`
	}
}

// ScrapeRunBody describes one scrape run.
type ScrapeRunBody struct {
	ID             string     `json:"id" doc:"Run identifier (ULID)"`
	Provider       string     `json:"provider" example:"invitro"`
	City           string     `json:"city" example:"москва"`
	Status         string     `json:"status" example:"pending"`
	Forced         bool       `json:"forced,omitempty"`
	RecordsFound   int        `json:"records_found,omitempty"`
	RecordsAdded   int        `json:"records_added,omitempty"`
	RecordsUpdated int        `json:"records_updated,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RefreshCatalogsOutput lists the runs enqueued by a refresh request.
type RefreshCatalogsOutput struct {
	Body struct {
		Enqueued []ScrapeRunBody `json:"enqueued" doc:"Runs queued by this request, empty when everything is fresh"`
	}
}

// RefreshCatalogs enqueues scrape runs for stale provider snapshots.
// The runs execute asynchronously; poll /api/v1/runs for progress.
func (h *CatalogHandler) RefreshCatalogs(ctx context.Context, input *RefreshCatalogsInput) (*RefreshCatalogsOutput, error) {
	runs, err := h.refreshSvc.EnsureFresh(ctx, input.City, input.Body.Force)
	if err != nil {
		if errors.Is(err, service.ErrCityNotFound) {
			return nil, huma.Error404NotFound("city not found")
		}
		return nil, huma.Error500InternalServerError("failed to enqueue refresh")
	}

	out := &RefreshCatalogsOutput{}
	out.Body.Enqueued = make([]ScrapeRunBody, 0, len(runs))
	for _, run := range runs {
		out.Body.Enqueued = append(out.Body.Enqueued, toScrapeRunBody(run))
	}
	return out, nil
}

// ListRunsInput filters the scrape run history.
type ListRunsInput struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"100" doc:"Maximum number of runs to return"`
}

// ListRunsOutput represents recent scrape runs.
type ListRunsOutput struct {
	Body struct {
		Runs []ScrapeRunBody `json:"runs"`
	}
}

// ListRuns returns recent scrape runs, newest first.
func (h *CatalogHandler) ListRuns(ctx context.Context, input *ListRunsInput) (*ListRunsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	runs, err := h.runRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list runs")
	}

	out := &ListRunsOutput{}
	out.Body.Runs = make([]ScrapeRunBody, 0, len(runs))
	for _, run := range runs {
		out.Body.Runs = append(out.Body.Runs, toScrapeRunBody(run))
	}
	return out, nil
}

// GetRunInput identifies a scrape run.
type GetRunInput struct {
	ID string `path:"id" doc:"Run identifier (ULID)"`
}

// GetRunOutput represents one scrape run.
type GetRunOutput struct {
	Body ScrapeRunBody
}

// GetRun returns one scrape run by ID.
func (h *CatalogHandler) GetRun(ctx context.Context, input *GetRunInput) (*GetRunOutput, error) {
	run, err := h.runRepo.GetByID(ctx, input.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get run")
	}
	if run == nil {
		return nil, huma.Error404NotFound("run not found")
	}
	return &GetRunOutput{Body: toScrapeRunBody(run)}, nil
}

func toScrapeRunBody(run *models.ScrapeRun) ScrapeRunBody {
	return ScrapeRunBody{
		ID:             run.ID,
		Provider:       string(run.Provider),
		City:           run.CitySlug,
		Status:         string(run.Status),
		Forced:         run.Forced,
		RecordsFound:   run.RecordsFound,
		RecordsAdded:   run.RecordsAdded,
		RecordsUpdated: run.RecordsUpdated,
		ErrorMessage:   run.ErrorMessage,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		CreatedAt:      run.CreatedAt,
	}
}
