package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/config"
	"github.com/ekaya-inc/ekaya-linkage/pkg/loader"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/repositories"
)

// MaxInspectSamples caps the failing rows returned when inspecting a single rule.
const MaxInspectSamples = 1000

// CreateRuleRequest is a structured rule as emitted by the rule proposer.
type CreateRuleRequest struct {
	TableID     uuid.UUID       `json:"table_id"`
	Column      string          `json:"column"`
	RuleType    models.RuleType `json:"rule_type"`
	Description string          `json:"description"`
	Params      json.RawMessage `json:"params,omitempty"`
}

// RuleService stores proposed validation rules and inspects their failures.
type RuleService interface {
	// Create validates and stores a rule.
	Create(ctx context.Context, projectID uuid.UUID, req CreateRuleRequest) (*models.ValidationRule, error)

	// List returns all rules of a project.
	List(ctx context.Context, projectID uuid.UUID) ([]*models.ValidationRule, error)

	// Delete removes a single rule.
	Delete(ctx context.Context, projectID, ruleID uuid.UUID) error

	// DeleteAll removes every rule of a project.
	DeleteAll(ctx context.Context, projectID uuid.UUID) (int64, error)

	// Failures evaluates one rule and returns its failing rows. A passing rule
	// returns a failure with FailedCount 0.
	Failures(ctx context.Context, projectID, ruleID uuid.UUID) (*models.RuleFailure, error)
}

type ruleService struct {
	tableRepo repositories.TableRepository
	ruleRepo  repositories.RuleRepository
	loader    loader.TabularLoader
	cfg       config.ValidationConfig
	logger    *zap.Logger
}

var _ RuleService = (*ruleService)(nil)

// NewRuleService creates a new rule service.
func NewRuleService(
	tableRepo repositories.TableRepository,
	ruleRepo repositories.RuleRepository,
	l loader.TabularLoader,
	cfg config.ValidationConfig,
	logger *zap.Logger,
) RuleService {
	return &ruleService{
		tableRepo: tableRepo,
		ruleRepo:  ruleRepo,
		loader:    l,
		cfg:       cfg,
		logger:    logger.Named("rules"),
	}
}

func (s *ruleService) Create(ctx context.Context, projectID uuid.UUID, req CreateRuleRequest) (*models.ValidationRule, error) {
	ruleType := models.RuleType(strings.ToLower(strings.TrimSpace(string(req.RuleType))))
	predicate, err := models.DecodeRulePredicate(ruleType, req.Params)
	if err != nil {
		return nil, err
	}

	table, err := s.tableRepo.GetByID(ctx, projectID, req.TableID)
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}

	rule := &models.ValidationRule{
		ProjectID:   projectID,
		TableID:     table.ID,
		Column:      strings.TrimSpace(req.Column),
		RuleType:    ruleType,
		Description: req.Description,
		Params:      req.Params,
		Predicate:   predicate,
	}
	for _, name := range rule.ReferencedColumns() {
		if table.ColumnByName(name) == nil {
			return nil, fmt.Errorf("%w: table %s has no column %q", apperrors.ErrInvalidRule, table.Name, name)
		}
	}

	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}

	s.logger.Info("Created rule",
		zap.String("project_id", projectID.String()),
		zap.String("rule_id", rule.ID.String()),
		zap.String("table", table.Name),
		zap.String("column", rule.Column),
		zap.String("rule_type", string(rule.RuleType)))

	return rule, nil
}

func (s *ruleService) List(ctx context.Context, projectID uuid.UUID) ([]*models.ValidationRule, error) {
	rules, err := s.ruleRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules, nil
}

func (s *ruleService) Delete(ctx context.Context, projectID, ruleID uuid.UUID) error {
	if err := s.ruleRepo.Delete(ctx, projectID, ruleID); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

func (s *ruleService) DeleteAll(ctx context.Context, projectID uuid.UUID) (int64, error) {
	n, err := s.ruleRepo.DeleteByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("delete rules: %w", err)
	}
	s.logger.Info("Deleted rules",
		zap.String("project_id", projectID.String()),
		zap.Int64("count", n))
	return n, nil
}

func (s *ruleService) Failures(ctx context.Context, projectID, ruleID uuid.UUID) (*models.RuleFailure, error) {
	rule, err := s.ruleRepo.GetByID(ctx, projectID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	if rule.Predicate == nil {
		return nil, fmt.Errorf("%w: rule %s has undecodable parameters", apperrors.ErrInvalidRule, ruleID)
	}
	table, err := s.tableRepo.GetByID(ctx, projectID, rule.TableID)
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}

	rc := NewRunContext(s.loader, s.cfg.SampleLimit, s.logger)
	failure, setupErr, err := evaluateRuleOnTable(ctx, rc, table, rule, MaxInspectSamples)
	if err != nil {
		return nil, fmt.Errorf("evaluate rule: %w", err)
	}
	if setupErr != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidRule, setupErr.Message)
	}
	if failure == nil {
		failure = &models.RuleFailure{
			RuleID:      rule.ID,
			Table:       table.Name,
			Column:      rule.Column,
			RuleType:    rule.RuleType,
			Description: rule.Description,
			Samples:     []models.RuleSample{},
		}
	}
	return failure, nil
}
