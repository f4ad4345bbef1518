package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/services"
)

// RuleListResponse for GET /rules
type RuleListResponse struct {
	Rules []*models.ValidationRule `json:"rules"`
	Total int                      `json:"total"`
}

// DeleteRulesResponse for DELETE /rules
type DeleteRulesResponse struct {
	Deleted int64 `json:"deleted"`
}

// RuleHandler stores proposed rules and inspects their failing rows.
type RuleHandler struct {
	ruleService services.RuleService
	logger      *zap.Logger
}

// NewRuleHandler creates a new rule handler.
func NewRuleHandler(ruleService services.RuleService, logger *zap.Logger) *RuleHandler {
	return &RuleHandler{
		ruleService: ruleService,
		logger:      logger,
	}
}

// RegisterRoutes registers the rule handler's routes on the given mux.
func (h *RuleHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/projects/{pid}/rules"

	mux.HandleFunc("GET "+base, tenantMiddleware(h.List))
	mux.HandleFunc("POST "+base, tenantMiddleware(h.Create))
	mux.HandleFunc("DELETE "+base, tenantMiddleware(h.DeleteAll))
	mux.HandleFunc("DELETE "+base+"/{rid}", tenantMiddleware(h.Delete))
	mux.HandleFunc("GET "+base+"/{rid}/failures", tenantMiddleware(h.Failures))
}

// List handles GET /api/projects/{pid}/rules
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	rules, err := h.ruleService.List(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "list_rules_failed", "Failed to list rules",
			zap.String("project_id", projectID.String()))
		return
	}

	writeData(w, h.logger, http.StatusOK, RuleListResponse{Rules: rules, Total: len(rules)})
}

// Create handles POST /api/projects/{pid}/rules
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req services.CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, h.logger, "Invalid request body")
		return
	}

	rule, err := h.ruleService.Create(r.Context(), projectID, req)
	if err != nil {
		writeServiceError(w, h.logger, err, "create_rule_failed", "Failed to create rule",
			zap.String("project_id", projectID.String()),
			zap.String("rule_type", string(req.RuleType)))
		return
	}

	writeData(w, h.logger, http.StatusCreated, rule)
}

// DeleteAll handles DELETE /api/projects/{pid}/rules
func (h *RuleHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	n, err := h.ruleService.DeleteAll(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "delete_rules_failed", "Failed to delete rules",
			zap.String("project_id", projectID.String()))
		return
	}

	writeData(w, h.logger, http.StatusOK, DeleteRulesResponse{Deleted: n})
}

// Delete handles DELETE /api/projects/{pid}/rules/{rid}
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.ruleService.Delete(r.Context(), projectID, ruleID); err != nil {
		writeServiceError(w, h.logger, err, "delete_rule_failed", "Failed to delete rule",
			zap.String("rule_id", ruleID.String()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Failures handles GET /api/projects/{pid}/rules/{rid}/failures
func (h *RuleHandler) Failures(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}
	ruleID, ok := ParseRuleID(w, r, h.logger)
	if !ok {
		return
	}

	failure, err := h.ruleService.Failures(r.Context(), projectID, ruleID)
	if err != nil {
		writeServiceError(w, h.logger, err, "rule_failures_failed", "Failed to evaluate rule",
			zap.String("rule_id", ruleID.String()))
		return
	}

	writeData(w, h.logger, http.StatusOK, failure)
}
