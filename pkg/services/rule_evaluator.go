package services

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-linkage/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// DefaultMaxRuleSamples caps the failing rows kept per rule.
const DefaultMaxRuleSamples = 20

// RuleOutcome is the result of evaluating one rule over a table.
type RuleOutcome struct {
	FailedCount int
	Samples     []models.RuleSample
}

// EvaluateRule applies the rule's predicate to every data row. columns maps a
// column name to its values in row order; every column the rule references
// must be present. Row indexes in samples are 0-based data rows.
func EvaluateRule(rule *models.ValidationRule, columns map[string][]string, maxSamples int) (*RuleOutcome, error) {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxRuleSamples
	}
	for _, name := range rule.ReferencedColumns() {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("rule %s: column %q not found", rule.ID, name)
		}
	}
	values := columns[rule.Column]

	var fails func(i int, v string) bool
	switch p := rule.Predicate.(type) {
	case models.NotNullRule:
		fails = func(_ int, v string) bool { return v == "" }
	case models.UniqueRule:
		counts := make(map[string]int, len(values))
		for _, v := range values {
			if v != "" {
				counts[v]++
			}
		}
		fails = func(_ int, v string) bool { return v != "" && counts[v] > 1 }
	case models.RegexRule:
		if p.Pattern == nil {
			return nil, fmt.Errorf("rule %s: regex rule without pattern", rule.ID)
		}
		fails = func(_ int, v string) bool { return v != "" && !p.Pattern.MatchString(v) }
	case models.RangeRule:
		fails = func(_ int, v string) bool {
			if v == "" {
				return false
			}
			f, err := jsonutil.ParseNumber(v)
			if err != nil {
				return true
			}
			return (p.Min != nil && f < *p.Min) || (p.Max != nil && f > *p.Max)
		}
	case models.CrossColumnRule:
		other := columns[p.Other]
		fails = func(i int, v string) bool {
			o := ""
			if i < len(other) {
				o = other[i]
			}
			if o == "" {
				return false
			}
			return !compareCross(p.Op, v, o)
		}
	default:
		return nil, fmt.Errorf("rule %s: unsupported predicate %T", rule.ID, rule.Predicate)
	}

	outcome := &RuleOutcome{Samples: []models.RuleSample{}}
	for i, v := range values {
		if !fails(i, v) {
			continue
		}
		outcome.FailedCount++
		if len(outcome.Samples) < maxSamples {
			outcome.Samples = append(outcome.Samples, models.RuleSample{RowIndex: i, Value: v})
		}
	}
	return outcome, nil
}

// compareCross reports whether v satisfies op against other. Values compare
// numerically when both parse as numbers, otherwise as strings.
func compareCross(op models.CrossColumnOp, v, other string) bool {
	if op == models.OpRequiredWith {
		return v != ""
	}

	cmp := 0
	fv, errV := jsonutil.ParseNumber(v)
	fo, errO := jsonutil.ParseNumber(other)
	if v != "" && errV == nil && errO == nil {
		switch {
		case fv < fo:
			cmp = -1
		case fv > fo:
			cmp = 1
		}
	} else {
		switch {
		case v < other:
			cmp = -1
		case v > other:
			cmp = 1
		}
	}

	switch op {
	case models.OpEquals:
		return cmp == 0
	case models.OpNotEquals:
		return cmp != 0
	case models.OpLessThan:
		return cmp < 0
	case models.OpLessOrEqual:
		return cmp <= 0
	case models.OpGreaterThan:
		return cmp > 0
	case models.OpGreaterOrEqual:
		return cmp >= 0
	default:
		return false
	}
}
