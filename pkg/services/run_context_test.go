package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

func TestRunContext_LoadsEachTableOnce(t *testing.T) {
	ml := newMockLoader()
	table := newTable(uuid.New(), "orders", models.TableKindTarget, "id")
	ml.add(table.Location, row("id"), row("1"), row("2"))

	rc := NewRunContext(ml, DefaultSampleLimit, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := rc.Rows(context.Background(), table)
			assert.NoError(t, err)
			assert.Len(t, rows, 2, "header row is stripped")
		}()
	}
	wg.Wait()

	_, err := rc.Index(context.Background(), table)
	require.NoError(t, err)
	set, err := rc.ValueSet(context.Background(), table, table.Columns[0])
	require.NoError(t, err)

	assert.Equal(t, 1, ml.loads(table.Location))
	assert.True(t, set.Has("2"))
}

func TestRunContext_LoadErrorBecomesWarning(t *testing.T) {
	ml := newMockLoader()
	table := newTable(uuid.New(), "missing", models.TableKindTarget, "id")

	rc := NewRunContext(ml, DefaultSampleLimit, zap.NewNop())

	rows, err := rc.Rows(context.Background(), table)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = rc.Rows(context.Background(), table)
	require.NoError(t, err)

	assert.Equal(t, []string{"Table missing skipped: file does not exist"}, rc.Warnings())
}

func TestRunContext_OtherErrorsPropagate(t *testing.T) {
	ml := newMockLoader()
	table := newTable(uuid.New(), "orders", models.TableKindTarget, "id")
	ml.fail(table.Location, context.Canceled)

	rc := NewRunContext(ml, DefaultSampleLimit, zap.NewNop())

	_, err := rc.ColumnValues(context.Background(), table, table.Columns[0])
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, rc.Warnings())
}

func TestRunContext_IndexBuiltOnceConcurrently(t *testing.T) {
	ml := newMockLoader()
	table := newTable(uuid.New(), "orders", models.TableKindTarget, "id")
	ml.add(table.Location, row("id"), row("1"), row("2"))

	rc := NewRunContext(ml, DefaultSampleLimit, zap.NewNop())

	indexes := make([]*ValueIndex, 8)
	var wg sync.WaitGroup
	for i := range indexes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vi, err := rc.Index(context.Background(), table)
			assert.NoError(t, err)
			indexes[i] = vi
			assert.Empty(t, rc.Warnings())
		}()
	}
	wg.Wait()

	for _, vi := range indexes {
		assert.Same(t, indexes[0], vi)
	}
	assert.Equal(t, 2, indexes[0].RowCount)
}

func TestRunContext_MissingColumns(t *testing.T) {
	ml := newMockLoader()
	table := newTable(uuid.New(), "ledger", models.TableKindTarget, "id", "customer", "amt")
	ml.add(table.Location, row("id", "customer"), row("1", "c1"))
	unreadable := newTable(uuid.New(), "gone", models.TableKindTarget, "id", "amt")

	rc := NewRunContext(ml, DefaultSampleLimit, zap.NewNop())

	missing, err := rc.MissingColumns(context.Background(), table, table.Columns...)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "amt", missing[0].Name)

	missing, err = rc.MissingColumns(context.Background(), unreadable, unreadable.Columns...)
	require.NoError(t, err)
	assert.Empty(t, missing, "the load warning already covers an unreadable table")
	assert.Equal(t, []string{"Table gone skipped: file does not exist"}, rc.Warnings())
}
