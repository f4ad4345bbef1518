package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
)

func float(f float64) *float64 { return &f }

func TestDecodeRulePredicate(t *testing.T) {
	tests := []struct {
		name     string
		ruleType RuleType
		params   string
		want     RulePredicate
	}{
		{name: "not null", ruleType: RuleTypeNotNull, want: NotNullRule{}},
		{name: "unique ignores params", ruleType: RuleTypeUnique, params: `{"pattern": "x"}`, want: UniqueRule{}},
		{name: "range numbers", ruleType: RuleTypeRange, params: `{"min": 0, "max": 10}`, want: RangeRule{Min: float(0), Max: float(10)}},
		{name: "range strings", ruleType: RuleTypeRange, params: `{"min": " 2,5 "}`, want: RangeRule{Min: float(2.5)}},
		{name: "cross column defaults to required_with", ruleType: RuleTypeCrossColumn, params: `{"other_column": "b"}`, want: CrossColumnRule{Other: "b", Op: OpRequiredWith}},
		{name: "cross column op", ruleType: RuleTypeCrossColumn, params: `{"other_column": "b", "op": "greater_than"}`, want: CrossColumnRule{Other: "b", Op: OpGreaterThan}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRulePredicate(tt.ruleType, json.RawMessage(tt.params))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRulePredicate_Regex(t *testing.T) {
	got, err := DecodeRulePredicate(RuleTypeRegex, json.RawMessage(`{"pattern": "^[0-9]{3}$"}`))
	require.NoError(t, err)

	re, ok := got.(RegexRule)
	require.True(t, ok)
	assert.True(t, re.Pattern.MatchString("123"))
	assert.False(t, re.Pattern.MatchString("12a"))
}

func TestDecodeRulePredicate_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		ruleType RuleType
		params   string
	}{
		{name: "unknown type", ruleType: "between"},
		{name: "malformed json", ruleType: RuleTypeNotNull, params: `{`},
		{name: "regex without pattern", ruleType: RuleTypeRegex, params: `{}`},
		{name: "regex does not compile", ruleType: RuleTypeRegex, params: `{"pattern": "("}`},
		{name: "range without bounds", ruleType: RuleTypeRange, params: `{}`},
		{name: "range not numeric", ruleType: RuleTypeRange, params: `{"min": "low"}`},
		{name: "range inverted", ruleType: RuleTypeRange, params: `{"min": 5, "max": 1}`},
		{name: "cross column without other", ruleType: RuleTypeCrossColumn, params: `{"op": "equals"}`},
		{name: "cross column unknown op", ruleType: RuleTypeCrossColumn, params: `{"other_column": "b", "op": "like"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRulePredicate(tt.ruleType, json.RawMessage(tt.params))
			assert.ErrorIs(t, err, apperrors.ErrInvalidRule)
		})
	}
}

func TestValidationRule_ReferencedColumns(t *testing.T) {
	single := &ValidationRule{Column: "a", Predicate: NotNullRule{}}
	cross := &ValidationRule{Column: "a", Predicate: CrossColumnRule{Other: "b", Op: OpEquals}}

	assert.Equal(t, []string{"a"}, single.ReferencedColumns())
	assert.Equal(t, []string{"a", "b"}, cross.ReferencedColumns())
}
