//go:build integration

package repositories

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/database"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/testhelpers"
)

// linkageTestContext holds a fresh project on the shared test database.
type linkageTestContext struct {
	t         *testing.T
	projectID uuid.UUID
	tables    TableRepository
	links     LinkRepository
	rules     RuleRepository
}

func setupLinkageTest(t *testing.T) (*linkageTestContext, context.Context) {
	db := testhelpers.GetLinkageDB(t)
	tc := &linkageTestContext{
		t:         t,
		projectID: uuid.New(),
		tables:    NewTableRepository(),
		links:     NewLinkRepository(),
		rules:     NewRuleRepository(),
	}

	ctx, cleanup, err := database.NewTenantScopeProvider(db.DB).WithTenantScope(context.Background(), tc.projectID)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return tc, ctx
}

func TestTableRepository_CreateGetList(t *testing.T) {
	tc, ctx := setupLinkageTest(t)

	accounts := testTable(tc.projectID, "accounts", models.TableKindSource, "id", "amount")
	accounts.Columns[0].IsPrimaryKey = true
	accounts.RowCount = 3
	require.NoError(t, tc.tables.Create(ctx, accounts))
	assert.False(t, accounts.CreatedAt.IsZero())

	got, err := tc.tables.GetByID(ctx, tc.projectID, accounts.ID)
	require.NoError(t, err)
	assert.Equal(t, "accounts", got.Name)
	assert.Equal(t, models.TableKindSource, got.Kind)
	assert.Equal(t, 3, got.RowCount)
	require.Len(t, got.Columns, 2)
	assert.Equal(t, "amount", got.Columns[1].Name)
	assert.Equal(t, 1, got.Columns[1].Index)
	assert.Equal(t, got.Columns[0].ID, got.PrimaryKey().ID)

	err = tc.tables.Create(ctx, testTable(tc.projectID, "accounts", models.TableKindTarget, "id"))
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = tc.tables.GetByID(ctx, tc.projectID, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, tc.tables.Create(ctx, testTable(tc.projectID, "ledger", models.TableKindTarget, "id")))
	list, err := tc.tables.ListByProject(ctx, tc.projectID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Len(t, list[0].Columns, 2)
	assert.Len(t, list[1].Columns, 1)
}

func TestTableRepository_StatsFlagsAndLinkedTo(t *testing.T) {
	tc, ctx := setupLinkageTest(t)
	orders := testTable(tc.projectID, "orders", models.TableKindTarget, "id", "region")
	customers := testTable(tc.projectID, "customers", models.TableKindTarget, "id")
	require.NoError(t, tc.tables.Create(ctx, orders))
	require.NoError(t, tc.tables.Create(ctx, customers))

	require.NoError(t, tc.tables.UpdateStats(ctx, tc.projectID, orders.ID, 5, []models.ColumnStats{
		{ColumnID: orders.Columns[0].ID, UniqueCount: 5, NullCount: 0, SampleValues: []string{"1", "2", "3"}},
		{ColumnID: orders.Columns[1].ID, UniqueCount: 2, NullCount: 1, SampleValues: []string{"EU", "US"}},
	}))

	yes := true
	col, err := tc.tables.UpdateColumnFlags(ctx, tc.projectID, orders.Columns[1].ID, ColumnFlags{IsValidationScope: &yes})
	require.NoError(t, err)
	assert.True(t, col.IsValidationScope)
	assert.False(t, col.IsPrimaryKey)

	ref := customers.Columns[0].ID
	require.NoError(t, tc.tables.SetLinkedTo(ctx, tc.projectID, orders.Columns[0].ID, &ref))

	got, err := tc.tables.GetByID(ctx, tc.projectID, orders.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.RowCount)
	assert.Equal(t, []string{"EU", "US"}, got.Columns[1].SampleValues)
	assert.Equal(t, 1, got.Columns[1].NullCount)
	require.NotNil(t, got.Columns[0].LinkedToColumnID)
	assert.Equal(t, ref, *got.Columns[0].LinkedToColumnID)

	_, err = tc.tables.UpdateColumnFlags(ctx, tc.projectID, uuid.New(), ColumnFlags{IsPrimaryKey: &yes})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLinkRepository_ApplyReplacesAndCascades(t *testing.T) {
	tc, ctx := setupLinkageTest(t)
	orders := testTable(tc.projectID, "orders", models.TableKindTarget, "customer", "country")
	customers := testTable(tc.projectID, "customers", models.TableKindTarget, "id", "alias")
	blocked := testTable(tc.projectID, "blocked", models.TableKindForbidden, "country")
	for _, tbl := range []*models.Table{orders, customers, blocked} {
		require.NoError(t, tc.tables.Create(ctx, tbl))
	}

	first := &models.Link{ProjectID: tc.projectID, CheckedColumnID: orders.Columns[0].ID, ReferenceColumnID: customers.Columns[1].ID}
	require.NoError(t, tc.links.Apply(ctx, first))
	second := &models.Link{
		ProjectID:         tc.projectID,
		CheckedColumnID:   orders.Columns[0].ID,
		ReferenceColumnID: customers.Columns[0].ID,
		Metadata:          models.LinkMetadata{IsKey: true, AutoDiscovered: true, Score: 0.9},
	}
	require.NoError(t, tc.links.Apply(ctx, second))
	assert.Equal(t, first.ID, second.ID, "the checked column keeps one link")

	require.NoError(t, tc.links.Apply(ctx, &models.Link{
		ProjectID:         tc.projectID,
		CheckedColumnID:   orders.Columns[1].ID,
		ReferenceColumnID: customers.Columns[1].ID,
		Metadata:          models.LinkMetadata{ForbiddenTableID: &blocked.ID},
	}))

	got, err := tc.links.GetByCheckedColumn(ctx, tc.projectID, orders.Columns[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, customers.Columns[0].ID, got.ReferenceColumnID)
	assert.Equal(t, models.LinkMetadata{IsKey: true, AutoDiscovered: true, Score: 0.9}, got.Metadata)

	require.NoError(t, tc.tables.Delete(ctx, tc.projectID, blocked.ID))
	got, err = tc.links.GetByCheckedColumn(ctx, tc.projectID, orders.Columns[1].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Metadata.ForbiddenTableID)

	require.NoError(t, tc.tables.Delete(ctx, tc.projectID, customers.ID))
	links, err := tc.links.ListByProject(ctx, tc.projectID)
	require.NoError(t, err)
	assert.Empty(t, links)

	assert.ErrorIs(t, tc.links.Delete(ctx, tc.projectID, first.ID), apperrors.ErrNotFound)
}

func TestRuleRepository_RoundTrip(t *testing.T) {
	tc, ctx := setupLinkageTest(t)
	payments := testTable(tc.projectID, "payments", models.TableKindTarget, "amount")
	require.NoError(t, tc.tables.Create(ctx, payments))

	params := json.RawMessage(`{"min": 0, "max": "100"}`)
	predicate, err := models.DecodeRulePredicate(models.RuleTypeRange, params)
	require.NoError(t, err)
	rule := &models.ValidationRule{
		ProjectID:   tc.projectID,
		TableID:     payments.ID,
		Column:      "amount",
		RuleType:    models.RuleTypeRange,
		Description: "amounts are positive",
		Params:      params,
		Predicate:   predicate,
	}
	require.NoError(t, tc.rules.Create(ctx, rule))

	got, err := tc.rules.GetByID(ctx, tc.projectID, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "amounts are positive", got.Description)
	assert.Equal(t, predicate, got.Predicate)

	require.NoError(t, tc.rules.Create(ctx, &models.ValidationRule{
		ProjectID: tc.projectID, TableID: payments.ID, Column: "amount", RuleType: models.RuleTypeNotNull, Predicate: models.NotNullRule{},
	}))
	n, err := tc.rules.DeleteByProject(ctx, tc.projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = tc.rules.GetByID(ctx, tc.projectID, rule.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
