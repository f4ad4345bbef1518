package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

func pairOf(src, tgt *models.Table, srcCol, tgtCol string) ColumnPair {
	return ColumnPair{Source: src.ColumnByName(srcCol), Target: tgt.ColumnByName(tgtCol)}
}

func TestReconcile_MismatchAndMissingRow(t *testing.T) {
	pid := uuid.New()
	src := newTable(pid, "source", models.TableKindSource, "id", "amt")
	tgt := newTable(pid, "target", models.TableKindTarget, "id", "amt")
	key := pairOf(src, tgt, "id", "id")

	res := Reconcile(ReconcileInput{
		Source:     src,
		SourceRows: [][]string{row("1", "10"), row("2", "20"), row("3", "30")},
		Target:     tgt,
		TargetRows: [][]string{row("1", "10"), row("2", "25")},
		Key:        &key,
		Values:     []ColumnPair{pairOf(src, tgt, "amt", "amt")},
	})

	assert.Empty(t, res.SetupErrors)
	require.Len(t, res.Findings, 2)

	assert.Equal(t, models.ReconciliationFinding{
		Type:        models.FindingValueMismatch,
		SourceTable: "source",
		TargetTable: "target",
		Key:         "2",
		Column:      "amt",
		Expected:    "20",
		Actual:      "25",
	}, res.Findings[0])

	assert.Equal(t, models.FindingMissingRow, res.Findings[1].Type)
	assert.Equal(t, "3", res.Findings[1].Key)
	assert.True(t, res.Failed())
}

func TestReconcile_MissingKeyMapping(t *testing.T) {
	pid := uuid.New()
	src := newTable(pid, "accounts", models.TableKindSource, "id")
	tgt := newTable(pid, "ledger", models.TableKindTarget, "id")

	res := Reconcile(ReconcileInput{
		Source:     src,
		SourceRows: [][]string{row("1")},
		Target:     tgt,
		TargetRows: [][]string{row("2")},
	})

	require.Len(t, res.SetupErrors, 1)
	assert.Equal(t, apperrors.SetupMissingKey, res.SetupErrors[0].Kind)
	assert.Equal(t, "No Primary Key defined for ledger -> accounts", res.SetupErrors[0].Message)
	assert.Empty(t, res.Findings)
}

func TestReconcile_DuplicateSourceKeyAbortsPair(t *testing.T) {
	pid := uuid.New()
	src := newTable(pid, "source", models.TableKindSource, "id", "amt")
	tgt := newTable(pid, "target", models.TableKindTarget, "id", "amt")
	key := pairOf(src, tgt, "id", "id")

	res := Reconcile(ReconcileInput{
		Source:     src,
		SourceRows: [][]string{row("1", "10"), row("1", "11"), row("2", "20"), row("2", "21"), row("2", "22")},
		Target:     tgt,
		TargetRows: [][]string{row("1", "99")},
		Key:        &key,
		Values:     []ColumnPair{pairOf(src, tgt, "amt", "amt")},
	})

	require.Len(t, res.SetupErrors, 1)
	e := res.SetupErrors[0]
	assert.Equal(t, apperrors.SetupDuplicateKey, e.Kind)
	assert.Contains(t, e.Message, "source.id")
	assert.Contains(t, e.Message, "2 values duplicated")
	assert.Contains(t, e.Message, `"1"`)
	assert.Empty(t, res.Findings, "no mismatches against an ambiguous key")
}

func TestReconcile_TargetDuplicatesAreTolerated(t *testing.T) {
	pid := uuid.New()
	src := newTable(pid, "source", models.TableKindSource, "id", "amt")
	tgt := newTable(pid, "target", models.TableKindTarget, "id", "amt")
	key := pairOf(src, tgt, "id", "id")

	res := Reconcile(ReconcileInput{
		Source:     src,
		SourceRows: [][]string{row("1", "10")},
		Target:     tgt,
		TargetRows: [][]string{row("1", "10"), row("1", "99"), row("", "5")},
		Key:        &key,
		Values:     []ColumnPair{pairOf(src, tgt, "amt", "amt")},
	})

	assert.Empty(t, res.SetupErrors)
	assert.Empty(t, res.Findings, "first target row per key is compared")
	assert.False(t, res.Failed())
}

func TestReconcile_EmptyScopeConsidersNoRows(t *testing.T) {
	pid := uuid.New()
	src := newTable(pid, "source", models.TableKindSource, "id", "region", "amt")
	tgt := newTable(pid, "target", models.TableKindTarget, "id", "amt")
	key := pairOf(src, tgt, "id", "id")

	res := Reconcile(ReconcileInput{
		Source:     src,
		SourceRows: [][]string{row("1", "north", "10"), row("2", "south", "20")},
		Target:     tgt,
		TargetRows: [][]string{row("1", "11"), row("2", "20")},
		Key:        &key,
		Values:     []ColumnPair{pairOf(src, tgt, "amt", "amt")},
		Scope:      &ScopeFilter{Column: src.ColumnByName("region"), Allowed: NewValueSet()},
	})

	assert.Empty(t, res.SetupErrors)
	assert.Empty(t, res.Findings)
}

func TestReconcile_ScopeExcludesRowsSilently(t *testing.T) {
	pid := uuid.New()
	src := newTable(pid, "source", models.TableKindSource, "id", "region", "amt")
	tgt := newTable(pid, "target", models.TableKindTarget, "id", "amt")
	key := pairOf(src, tgt, "id", "id")

	res := Reconcile(ReconcileInput{
		Source: src,
		SourceRows: [][]string{
			row("1", "north", "10"),
			row("2", "south", "20"),
			row("2", "south", "21"),
			row("3", "north", "30"),
		},
		Target:     tgt,
		TargetRows: [][]string{row("1", "10"), row("2", "99"), row("4", "5")},
		Key:        &key,
		Values:     []ColumnPair{pairOf(src, tgt, "amt", "amt")},
		Scope:      &ScopeFilter{Column: src.ColumnByName("region"), Allowed: NewValueSet("north")},
	})

	assert.Empty(t, res.SetupErrors, "duplicates outside the scope do not matter")
	require.Len(t, res.Findings, 2)
	assert.Equal(t, models.FindingMissingRow, res.Findings[0].Type)
	assert.Equal(t, "3", res.Findings[0].Key)
	assert.Equal(t, models.FindingExtraRow, res.Findings[1].Type)
	assert.Equal(t, "4", res.Findings[1].Key, "excluded key 2 is not reported as extra")
}

func TestReconcile_ExtraRowsAreInformational(t *testing.T) {
	pid := uuid.New()
	src := newTable(pid, "source", models.TableKindSource, "id")
	tgt := newTable(pid, "target", models.TableKindTarget, "id")
	key := pairOf(src, tgt, "id", "id")

	res := Reconcile(ReconcileInput{
		Source:     src,
		SourceRows: [][]string{row("1")},
		Target:     tgt,
		TargetRows: [][]string{row("1"), row("5")},
		Key:        &key,
	})

	require.Len(t, res.Findings, 1)
	assert.Equal(t, models.FindingExtraRow, res.Findings[0].Type)
	assert.False(t, res.Failed())
}

func TestReconcile_CodebookViolation(t *testing.T) {
	pid := uuid.New()
	src := newTable(pid, "source", models.TableKindSource, "id", "currency")
	tgt := newTable(pid, "target", models.TableKindTarget, "id", "currency")
	key := pairOf(src, tgt, "id", "id")
	currency := pairOf(src, tgt, "currency", "currency")
	currency.Codebook = &Codebook{
		Ref:    ColumnRef{Table: "currencies", Column: "code"},
		Values: NewValueSet("EUR", "USD"),
	}

	res := Reconcile(ReconcileInput{
		Source:     src,
		SourceRows: [][]string{row("1", "XXX"), row("2", "EUR"), row("3", "")},
		Target:     tgt,
		TargetRows: [][]string{row("1", "XXX"), row("2", "EUR"), row("3", "")},
		Key:        &key,
		Values:     []ColumnPair{currency},
	})

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, models.FindingCodebookViolation, f.Type)
	assert.Equal(t, "currencies", f.SourceTable)
	assert.Equal(t, "1", f.Key)
	assert.Equal(t, "currency", f.Column)
	assert.Equal(t, "XXX", f.Actual)
	assert.True(t, res.Failed())
}

func TestCountNoun(t *testing.T) {
	tests := []struct {
		n    int
		noun string
		want string
	}{
		{1, "value", "1 value"},
		{2, "value", "2 values"},
		{0, "column", "0 columns"},
		{3, "entry", "3 entries"},
		{2, "key", "2 keys"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountNoun(tt.n, tt.noun))
	}
}
