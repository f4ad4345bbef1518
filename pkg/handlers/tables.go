package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/repositories"
	"github.com/ekaya-inc/ekaya-linkage/pkg/services"
)

// TableListResponse for GET /tables
type TableListResponse struct {
	Tables []*models.Table `json:"tables"`
	Total  int             `json:"total"`
}

// UpdateColumnRequest for PATCH /columns/{cid}. Omitted flags are left unchanged.
type UpdateColumnRequest struct {
	IsPrimaryKey      *bool `json:"is_primary_key,omitempty"`
	IsValidationScope *bool `json:"is_validation_scope,omitempty"`
}

// TableHandler handles table registration and column flag requests.
type TableHandler struct {
	tableService services.TableService
	logger       *zap.Logger
}

// NewTableHandler creates a new table handler.
func NewTableHandler(tableService services.TableService, logger *zap.Logger) *TableHandler {
	return &TableHandler{
		tableService: tableService,
		logger:       logger,
	}
}

// RegisterRoutes registers the table handler's routes on the given mux.
func (h *TableHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/projects/{pid}"

	mux.HandleFunc("GET "+base+"/tables", tenantMiddleware(h.List))
	mux.HandleFunc("POST "+base+"/tables", tenantMiddleware(h.Register))
	mux.HandleFunc("GET "+base+"/tables/{tid}", tenantMiddleware(h.Get))
	mux.HandleFunc("DELETE "+base+"/tables/{tid}", tenantMiddleware(h.Delete))
	mux.HandleFunc("PATCH "+base+"/columns/{cid}", tenantMiddleware(h.UpdateColumn))
}

// List handles GET /api/projects/{pid}/tables
func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	tables, err := h.tableService.List(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "list_tables_failed", "Failed to list tables",
			zap.String("project_id", projectID.String()))
		return
	}

	writeData(w, h.logger, http.StatusOK, TableListResponse{Tables: tables, Total: len(tables)})
}

// Register handles POST /api/projects/{pid}/tables
func (h *TableHandler) Register(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.RegisterTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "Invalid request body")
		return
	}
	if req.Location == "" {
		writeBadRequest(w, h.logger, "location is required")
		return
	}

	table, err := h.tableService.Register(r.Context(), projectID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "register_table_failed", "Failed to register table",
			zap.String("project_id", projectID.String()),
			zap.String("kind", string(req.Kind)))
		return
	}

	writeData(w, h.logger, http.StatusCreated, table)
}

// Get handles GET /api/projects/{pid}/tables/{tid}
func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, tableID, ok := ParseProjectAndTableIDs(w, r, h.logger)
	if !ok {
		return
	}

	table, err := h.tableService.Get(r.Context(), projectID, tableID)
	if err != nil {
		writeServiceError(w, h.logger, err, "get_table_failed", "Failed to get table",
			zap.String("table_id", tableID.String()))
		return
	}

	writeData(w, h.logger, http.StatusOK, table)
}

// Delete handles DELETE /api/projects/{pid}/tables/{tid}
func (h *TableHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, tableID, ok := ParseProjectAndTableIDs(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.tableService.Delete(r.Context(), projectID, tableID); err != nil {
		writeServiceError(w, h.logger, err, "delete_table_failed", "Failed to delete table",
			zap.String("table_id", tableID.String()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateColumn handles PATCH /api/projects/{pid}/columns/{cid}
func (h *TableHandler) UpdateColumn(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	columnID, ok := ParseColumnID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "Invalid request body")
		return
	}

	col, err := h.tableService.UpdateColumnFlags(r.Context(), projectID, columnID, repositories.ColumnFlags{
		IsPrimaryKey:      req.IsPrimaryKey,
		IsValidationScope: req.IsValidationScope,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "update_column_failed", "Failed to update column",
			zap.String("column_id", columnID.String()))
		return
	}

	writeData(w, h.logger, http.StatusOK, col)
}
