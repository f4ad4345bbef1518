package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/services"
)

// LinkListResponse for GET /links
type LinkListResponse struct {
	Links []*models.Link `json:"links"`
	Total int            `json:"total"`
}

// LinkHandler manages links drawn or removed by the user.
type LinkHandler struct {
	linkService services.LinkService
	logger      *zap.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(linkService services.LinkService, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{
		linkService: linkService,
		logger:      logger,
	}
}

// RegisterRoutes registers the link handler's routes on the given mux.
func (h *LinkHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/projects/{pid}/links"

	mux.HandleFunc("GET "+base, tenantMiddleware(h.List))
	mux.HandleFunc("POST "+base, tenantMiddleware(h.Create))
	mux.HandleFunc("DELETE "+base+"/{lid}", tenantMiddleware(h.Delete))
}

// List handles GET /api/projects/{pid}/links
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	links, err := h.linkService.List(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "list_links_failed", "Failed to list links",
			zap.String("project_id", projectID.String()))
		return
	}

	writeData(w, h.logger, http.StatusOK, LinkListResponse{Links: links, Total: len(links)})
}

// Create handles POST /api/projects/{pid}/links
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "Invalid request body")
		return
	}

	link, err := h.linkService.Create(r.Context(), projectID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "create_link_failed", "Failed to create link",
			zap.String("project_id", projectID.String()),
			zap.String("checked_column_id", req.CheckedColumnID.String()))
		return
	}

	writeData(w, h.logger, http.StatusCreated, link)
}

// Delete handles DELETE /api/projects/{pid}/links/{lid}
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	linkID, ok := ParseLinkID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.linkService.Delete(r.Context(), projectID, linkID); err != nil {
		writeServiceError(w, h.logger, err, "delete_link_failed", "Failed to delete link",
			zap.String("link_id", linkID.String()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
