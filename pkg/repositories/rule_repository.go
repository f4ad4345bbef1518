package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/database"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// RuleRepository defines data access for validation rules.
type RuleRepository interface {
	// Create persists a rule. Rules are never updated.
	Create(ctx context.Context, rule *models.ValidationRule) error

	// GetByID returns a rule with its predicate decoded, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, projectID, ruleID uuid.UUID) (*models.ValidationRule, error)

	// ListByProject returns all rules of a project, oldest first.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.ValidationRule, error)

	// Delete removes a single rule.
	Delete(ctx context.Context, projectID, ruleID uuid.UUID) error

	// DeleteByProject removes every rule of a project and returns how many were removed.
	DeleteByProject(ctx context.Context, projectID uuid.UUID) (int64, error)
}

type ruleRepository struct{}

var _ RuleRepository = (*ruleRepository)(nil)

// NewRuleRepository creates a PostgreSQL rule repository.
func NewRuleRepository() RuleRepository {
	return &ruleRepository{}
}

const ruleSelect = `
	SELECT id, project_id, table_id, column_name, rule_type, description, params, created_at
	FROM linkage_rules`

func (r *ruleRepository) Create(ctx context.Context, rule *models.ValidationRule) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	var params []byte
	if len(rule.Params) > 0 {
		params = rule.Params
	}

	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO linkage_rules (id, project_id, table_id, column_name, rule_type, description, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		rule.ID, rule.ProjectID, rule.TableID, rule.Column, rule.RuleType, rule.Description, params,
	).Scan(&rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

func (r *ruleRepository) GetByID(ctx context.Context, projectID, ruleID uuid.UUID) (*models.ValidationRule, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rule, err := scanRule(scope.Conn.QueryRow(ctx, ruleSelect+`
		WHERE project_id = $1 AND id = $2`, projectID, ruleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("rule %s: %w", ruleID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (r *ruleRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.ValidationRule, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, ruleSelect+`
		WHERE project_id = $1
		ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*models.ValidationRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

func (r *ruleRepository) Delete(ctx context.Context, projectID, ruleID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		DELETE FROM linkage_rules WHERE project_id = $1 AND id = $2`, projectID, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *ruleRepository) DeleteByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no tenant scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `DELETE FROM linkage_rules WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rules: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanRule reads a rule row and decodes its predicate. A stored rule whose
// parameters no longer decode is returned with a nil Predicate.
func scanRule(row pgx.Row) (*models.ValidationRule, error) {
	var rule models.ValidationRule
	var params []byte
	err := row.Scan(&rule.ID, &rule.ProjectID, &rule.TableID, &rule.Column, &rule.RuleType,
		&rule.Description, &params, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}
	rule.Params = params
	if p, err := models.DecodeRulePredicate(rule.RuleType, rule.Params); err == nil {
		rule.Predicate = p
	}
	return &rule, nil
}
