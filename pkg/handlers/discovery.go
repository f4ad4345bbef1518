package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/services"
)

// ApplySuggestionsRequest for POST /discovery/apply
type ApplySuggestionsRequest struct {
	Suggestions []models.LinkSuggestion `json:"suggestions"`
}

// ApplySuggestionsResponse lists the links created or replaced.
type ApplySuggestionsResponse struct {
	Links []*models.Link `json:"links"`
	Total int            `json:"total"`
}

// DiscoveryHandler runs link discovery and applies accepted suggestions.
type DiscoveryHandler struct {
	discoveryService services.DiscoveryService
	logger           *zap.Logger
}

// NewDiscoveryHandler creates a new discovery handler.
func NewDiscoveryHandler(discoveryService services.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           logger,
	}
}

// RegisterRoutes registers the discovery handler's routes on the given mux.
func (h *DiscoveryHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/projects/{pid}/discovery"

	mux.HandleFunc("POST "+base, tenantMiddleware(h.Discover))
	mux.HandleFunc("POST "+base+"/apply", tenantMiddleware(h.Apply))
}

// Discover handles POST /api/projects/{pid}/discovery?mode=all|mappings|references
func (h *DiscoveryHandler) Discover(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	mode, ok := services.ParseDiscoveryMode(r.URL.Query().Get("mode"))
	if !ok {
		writeBadRequest(w, h.logger, "mode must be one of all, mappings, references")
		return
	}

	result, err := h.discoveryService.Discover(r.Context(), projectID, mode)
	if err != nil {
		writeServiceError(w, h.logger, err, "discovery_failed", "Failed to discover links",
			zap.String("project_id", projectID.String()))
		return
	}

	writeData(w, h.logger, http.StatusOK, result)
}

// Apply handles POST /api/projects/{pid}/discovery/apply
func (h *DiscoveryHandler) Apply(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req ApplySuggestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "Invalid request body")
		return
	}

	links, err := h.discoveryService.Apply(r.Context(), projectID, req.Suggestions)
	if err != nil {
		writeServiceError(w, h.logger, err, "apply_suggestions_failed", "Failed to apply suggestions",
			zap.String("project_id", projectID.String()),
			zap.Int("suggestions", len(req.Suggestions)))
		return
	}

	writeData(w, h.logger, http.StatusOK, ApplySuggestionsResponse{Links: links, Total: len(links)})
}
