package services

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/config"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

func (f *linkageFixture) ruleService() RuleService {
	return NewRuleService(f.store.Tables(), f.store.Rules(), f.loader, config.DefaultValidationConfig(), zap.NewNop())
}

func newPaymentsFixture(t *testing.T) *linkageFixture {
	f := newLinkageFixture(t)
	f.table("payments", models.TableKindTarget,
		row("iban", "amount", "paid_at", "due_at"),
		row("CZ01", "10", "2024-01-02", "2024-01-05"),
		row("", "-3", "2024-01-09", "2024-01-05"),
		row("CZ03", "abc", "", "2024-01-05"))
	return f
}

func TestRuleService_CreateNormalizesType(t *testing.T) {
	f := newPaymentsFixture(t)
	svc := f.ruleService()

	rule, err := svc.Create(f.ctx, f.pid, CreateRuleRequest{
		TableID:  f.tables["payments"].ID,
		Column:   " amount ",
		RuleType: " Range ",
		Params:   json.RawMessage(`{"min": 0}`),
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, rule.ID)
	assert.Equal(t, models.RuleTypeRange, rule.RuleType)
	assert.Equal(t, "amount", rule.Column)
	require.NotNil(t, rule.Predicate)

	rules, err := svc.List(f.ctx, f.pid)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestRuleService_CreateRejectsInvalidRules(t *testing.T) {
	f := newPaymentsFixture(t)
	svc := f.ruleService()
	tableID := f.tables["payments"].ID

	tests := []struct {
		name    string
		req     CreateRuleRequest
		wantErr error
	}{
		{
			name:    "unknown type",
			req:     CreateRuleRequest{TableID: tableID, Column: "iban", RuleType: "fuzzy"},
			wantErr: apperrors.ErrInvalidRule,
		},
		{
			name:    "unknown column",
			req:     CreateRuleRequest{TableID: tableID, Column: "bic", RuleType: models.RuleTypeNotNull},
			wantErr: apperrors.ErrInvalidRule,
		},
		{
			name: "unknown other column",
			req: CreateRuleRequest{TableID: tableID, Column: "paid_at", RuleType: models.RuleTypeCrossColumn,
				Params: json.RawMessage(`{"other_column": "settled_at", "op": "less_or_equal"}`)},
			wantErr: apperrors.ErrInvalidRule,
		},
		{
			name:    "unknown table",
			req:     CreateRuleRequest{TableID: uuid.New(), Column: "iban", RuleType: models.RuleTypeNotNull},
			wantErr: apperrors.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(f.ctx, f.pid, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	rules, err := svc.List(f.ctx, f.pid)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestRuleService_Failures(t *testing.T) {
	f := newPaymentsFixture(t)
	svc := f.ruleService()
	tableID := f.tables["payments"].ID

	notNull, err := svc.Create(f.ctx, f.pid, CreateRuleRequest{TableID: tableID, Column: "iban", RuleType: models.RuleTypeNotNull})
	require.NoError(t, err)
	rng, err := svc.Create(f.ctx, f.pid, CreateRuleRequest{TableID: tableID, Column: "amount", RuleType: models.RuleTypeRange,
		Params: json.RawMessage(`{"min": 0}`)})
	require.NoError(t, err)
	cross, err := svc.Create(f.ctx, f.pid, CreateRuleRequest{TableID: tableID, Column: "paid_at", RuleType: models.RuleTypeCrossColumn,
		Params: json.RawMessage(`{"other_column": "due_at", "op": "less_or_equal"}`)})
	require.NoError(t, err)
	unique, err := svc.Create(f.ctx, f.pid, CreateRuleRequest{TableID: tableID, Column: "iban", RuleType: models.RuleTypeUnique})
	require.NoError(t, err)

	failure, err := svc.Failures(f.ctx, f.pid, notNull.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, failure.FailedCount)
	assert.Equal(t, []models.RuleSample{{RowIndex: 1, Value: ""}}, failure.Samples)

	failure, err = svc.Failures(f.ctx, f.pid, rng.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, failure.FailedCount)
	assert.Equal(t, []models.RuleSample{{RowIndex: 1, Value: "-3"}, {RowIndex: 2, Value: "abc"}}, failure.Samples)

	failure, err = svc.Failures(f.ctx, f.pid, cross.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, failure.FailedCount)
	assert.Equal(t, "2024-01-09", failure.Samples[0].Value)

	failure, err = svc.Failures(f.ctx, f.pid, unique.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, failure.FailedCount)
	assert.Empty(t, failure.Samples)
	assert.Equal(t, unique.ID, failure.RuleID)
}

func TestRuleService_DeleteAll(t *testing.T) {
	f := newPaymentsFixture(t)
	svc := f.ruleService()
	tableID := f.tables["payments"].ID

	for _, col := range []string{"iban", "amount"} {
		_, err := svc.Create(f.ctx, f.pid, CreateRuleRequest{TableID: tableID, Column: col, RuleType: models.RuleTypeNotNull})
		require.NoError(t, err)
	}

	n, err := svc.DeleteAll(f.ctx, f.pid)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = svc.Failures(f.ctx, f.pid, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
