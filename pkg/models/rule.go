package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/jsonutil"
)

// RuleType is the tag of a validation rule as supplied by the rule proposer.
type RuleType string

const (
	RuleTypeNotNull     RuleType = "not_null"
	RuleTypeUnique      RuleType = "unique"
	RuleTypeRegex       RuleType = "regex"
	RuleTypeRange       RuleType = "range"
	RuleTypeCrossColumn RuleType = "cross_column"
)

// ValidRuleTypes contains all valid rule type values.
var ValidRuleTypes = []RuleType{
	RuleTypeNotNull,
	RuleTypeUnique,
	RuleTypeRegex,
	RuleTypeRange,
	RuleTypeCrossColumn,
}

// ValidationRule is a structured predicate over one column of a table.
// Rules are created by an external proposer and never mutated.
type ValidationRule struct {
	ID          uuid.UUID       `json:"id"`
	ProjectID   uuid.UUID       `json:"project_id"`
	TableID     uuid.UUID       `json:"table_id"`
	Column      string          `json:"column"`
	RuleType    RuleType        `json:"rule_type"`
	Description string          `json:"description"`
	Params      json.RawMessage `json:"params,omitempty"`
	Predicate   RulePredicate   `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RulePredicate is the closed set of rule kinds. Only types in this package
// implement it.
type RulePredicate interface {
	ruleType() RuleType
}

// NotNullRule fails rows whose value is empty.
type NotNullRule struct{}

// UniqueRule fails rows whose non-empty value occurs more than once in the column.
type UniqueRule struct{}

// RegexRule fails rows whose non-empty value does not match Pattern.
type RegexRule struct {
	Pattern *regexp.Regexp
}

// RangeRule fails rows whose non-empty value is not numeric or lies outside [Min, Max].
// A nil bound is open.
type RangeRule struct {
	Min *float64
	Max *float64
}

// CrossColumnOp is the comparison applied by a CrossColumnRule.
type CrossColumnOp string

const (
	OpRequiredWith   CrossColumnOp = "required_with"
	OpEquals         CrossColumnOp = "equals"
	OpNotEquals      CrossColumnOp = "not_equals"
	OpLessThan       CrossColumnOp = "less_than"
	OpLessOrEqual    CrossColumnOp = "less_or_equal"
	OpGreaterThan    CrossColumnOp = "greater_than"
	OpGreaterOrEqual CrossColumnOp = "greater_or_equal"
)

// CrossColumnRule compares the rule column against another column of the same row.
// Rows where the other column is empty are not evaluated.
type CrossColumnRule struct {
	Other string
	Op    CrossColumnOp
}

func (NotNullRule) ruleType() RuleType     { return RuleTypeNotNull }
func (UniqueRule) ruleType() RuleType      { return RuleTypeUnique }
func (RegexRule) ruleType() RuleType       { return RuleTypeRegex }
func (RangeRule) ruleType() RuleType       { return RuleTypeRange }
func (CrossColumnRule) ruleType() RuleType { return RuleTypeCrossColumn }

// ReferencedColumns returns the column names a rule reads from each row.
func (r *ValidationRule) ReferencedColumns() []string {
	if cc, ok := r.Predicate.(CrossColumnRule); ok {
		return []string{r.Column, cc.Other}
	}
	return []string{r.Column}
}

// ruleParams is the proposer's parameter object. Numeric bounds may arrive as
// JSON numbers or strings.
type ruleParams struct {
	Pattern string          `json:"pattern"`
	Min     json.RawMessage `json:"min"`
	Max     json.RawMessage `json:"max"`
	Other   string          `json:"other_column"`
	Op      string          `json:"op"`
}

// DecodeRulePredicate builds the predicate for a rule type from its raw parameters.
func DecodeRulePredicate(ruleType RuleType, raw json.RawMessage) (RulePredicate, error) {
	var p ruleParams
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: params: %v", apperrors.ErrInvalidRule, err)
		}
	}

	switch ruleType {
	case RuleTypeNotNull:
		return NotNullRule{}, nil
	case RuleTypeUnique:
		return UniqueRule{}, nil
	case RuleTypeRegex:
		if p.Pattern == "" {
			return nil, fmt.Errorf("%w: regex rule requires pattern", apperrors.ErrInvalidRule)
		}
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern: %v", apperrors.ErrInvalidRule, err)
		}
		return RegexRule{Pattern: re}, nil
	case RuleTypeRange:
		lo, err := jsonutil.FlexibleFloatValue(p.Min)
		if err != nil {
			return nil, fmt.Errorf("%w: min: %v", apperrors.ErrInvalidRule, err)
		}
		hi, err := jsonutil.FlexibleFloatValue(p.Max)
		if err != nil {
			return nil, fmt.Errorf("%w: max: %v", apperrors.ErrInvalidRule, err)
		}
		if lo == nil && hi == nil {
			return nil, fmt.Errorf("%w: range rule requires min or max", apperrors.ErrInvalidRule)
		}
		if lo != nil && hi != nil && *lo > *hi {
			return nil, fmt.Errorf("%w: min %g greater than max %g", apperrors.ErrInvalidRule, *lo, *hi)
		}
		return RangeRule{Min: lo, Max: hi}, nil
	case RuleTypeCrossColumn:
		if p.Other == "" {
			return nil, fmt.Errorf("%w: cross_column rule requires other_column", apperrors.ErrInvalidRule)
		}
		op := CrossColumnOp(p.Op)
		if op == "" {
			op = OpRequiredWith
		}
		switch op {
		case OpRequiredWith, OpEquals, OpNotEquals, OpLessThan, OpLessOrEqual, OpGreaterThan, OpGreaterOrEqual:
		default:
			return nil, fmt.Errorf("%w: unknown op %q", apperrors.ErrInvalidRule, p.Op)
		}
		return CrossColumnRule{Other: p.Other, Op: op}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", apperrors.ErrInvalidRule, ruleType)
	}
}
