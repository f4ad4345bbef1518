package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/services"
)

// ValidateRequest for POST /validate. An empty body validates every table.
type ValidateRequest struct {
	TableIDs []uuid.UUID `json:"table_ids,omitempty"`
}

// ValidationHandler runs validation and returns the report.
type ValidationHandler struct {
	validationService services.ValidationService
	logger            *zap.Logger
}

// NewValidationHandler creates a new validation handler.
func NewValidationHandler(validationService services.ValidationService, logger *zap.Logger) *ValidationHandler {
	return &ValidationHandler{
		validationService: validationService,
		logger:            logger,
	}
}

// RegisterRoutes registers the validation handler's routes on the given mux.
func (h *ValidationHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/projects/{pid}/validate", tenantMiddleware(h.Validate))
}

// Validate handles POST /api/projects/{pid}/validate
// Domain findings are part of the 200 response; only infrastructure failures
// and concurrent runs produce error statuses.
func (h *ValidationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, h.logger, "Invalid request body")
		return
	}

	report, err := h.validationService.Validate(r.Context(), projectID, req.TableIDs)
	if err != nil {
		writeServiceError(w, h.logger, err, "validation_failed", "Failed to validate project",
			zap.String("project_id", projectID.String()))
		return
	}

	writeData(w, h.logger, http.StatusOK, report)
}
