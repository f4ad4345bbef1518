//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/database"
	"github.com/ekaya-inc/ekaya-linkage/pkg/testhelpers"
)

func TestRunMigrations_Idempotent(t *testing.T) {
	testDB := testhelpers.GetLinkageDB(t)

	require.NoError(t, database.RunMigrations(testDB.DB.SQLDB(), zap.NewNop()))

	var version int
	err := testDB.DB.QueryRow(context.Background(), `SELECT version FROM schema_migrations`).Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestWithTenant_SetsAndResetsProject(t *testing.T) {
	testDB := testhelpers.GetLinkageDB(t)
	ctx := context.Background()
	projectID := uuid.New()

	scope, err := testDB.DB.WithTenant(ctx, projectID)
	require.NoError(t, err)

	var current string
	require.NoError(t, scope.Conn.QueryRow(ctx, `SELECT current_setting('app.current_project_id', true)`).Scan(&current))
	assert.Equal(t, projectID.String(), current)

	conn := scope.Conn.Conn()
	_, err = conn.Exec(ctx, "RESET app.current_project_id")
	require.NoError(t, err)
	require.NoError(t, conn.QueryRow(ctx, `SELECT coalesce(current_setting('app.current_project_id', true), '')`).Scan(&current))
	assert.Empty(t, current)

	scope.Close()
}

func TestTenantScopeProvider_AttachesScope(t *testing.T) {
	testDB := testhelpers.GetLinkageDB(t)
	projectID := uuid.New()

	ctx, cleanup, err := database.NewTenantScopeProvider(testDB.DB).WithTenantScope(context.Background(), projectID)
	require.NoError(t, err)
	defer cleanup()

	scope, ok := database.GetTenantScope(ctx)
	require.True(t, ok)
	require.NotNil(t, scope.Conn)

	_, ok = database.GetTenantScope(context.Background())
	assert.False(t, ok)
}
