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

// ColumnFlags is a partial update of a column's user-set flags. Nil fields are left unchanged.
type ColumnFlags struct {
	IsPrimaryKey      *bool `json:"is_primary_key,omitempty"`
	IsValidationScope *bool `json:"is_validation_scope,omitempty"`
}

// TableRepository defines data access for registered tables and their columns.
type TableRepository interface {
	// Create persists a table together with its columns.
	Create(ctx context.Context, table *models.Table) error

	// GetByID returns a table with its columns, or apperrors.ErrNotFound.
	GetByID(ctx context.Context, projectID, tableID uuid.UUID) (*models.Table, error)

	// ListByProject returns all tables of a project with their columns, oldest first.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Table, error)

	// ColumnsOf returns the columns of a table ordered by position.
	ColumnsOf(ctx context.Context, projectID, tableID uuid.UUID) ([]*models.Column, error)

	// Delete removes a table; columns, links and rules cascade.
	Delete(ctx context.Context, projectID, tableID uuid.UUID) error

	// UpdateStats stores the row count and per-column statistics gathered during discovery.
	UpdateStats(ctx context.Context, projectID, tableID uuid.UUID, rowCount int, stats []models.ColumnStats) error

	// UpdateColumnFlags changes the primary key and validation scope flags of a column.
	UpdateColumnFlags(ctx context.Context, projectID, columnID uuid.UUID, flags ColumnFlags) (*models.Column, error)

	// SetLinkedTo records which column a column was linked to (nil clears it).
	SetLinkedTo(ctx context.Context, projectID, columnID uuid.UUID, linkedTo *uuid.UUID) error
}

type tableRepository struct{}

var _ TableRepository = (*tableRepository)(nil)

// NewTableRepository creates a PostgreSQL table repository.
func NewTableRepository() TableRepository {
	return &tableRepository{}
}

const columnSelect = `
	SELECT id, table_id, name, ordinal, is_primary_key, is_validation_scope,
	       unique_count, null_count, sample_values, linked_to_column_id
	FROM linkage_columns`

func (r *tableRepository) Create(ctx context.Context, table *models.Table) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO linkage_tables (id, project_id, name, kind, location, row_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		table.ID, table.ProjectID, table.Name, table.Kind, table.Location, table.RowCount,
	).Scan(&table.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("table %q: %w", table.Name, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to insert table: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range table.Columns {
		batch.Queue(`
			INSERT INTO linkage_columns (id, project_id, table_id, name, ordinal, is_primary_key, is_validation_scope)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, table.ProjectID, table.ID, c.Name, c.Index, c.IsPrimaryKey, c.IsValidationScope)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert columns: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit table: %w", err)
	}
	return nil
}

func (r *tableRepository) GetByID(ctx context.Context, projectID, tableID uuid.UUID) (*models.Table, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		SELECT id, project_id, name, kind, location, row_count, created_at
		FROM linkage_tables
		WHERE project_id = $1 AND id = $2`, projectID, tableID)

	t, err := scanTable(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("table %s: %w", tableID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get table: %w", err)
	}

	t.Columns, err = r.ColumnsOf(ctx, projectID, tableID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *tableRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Table, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, project_id, name, kind, location, row_count, created_at
		FROM linkage_tables
		WHERE project_id = $1
		ORDER BY created_at ASC, name ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	tables := make([]*models.Table, 0)
	byID := make(map[uuid.UUID]*models.Table)
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		t.Columns = []*models.Column{}
		tables = append(tables, t)
		byID[t.ID] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	if len(tables) == 0 {
		return tables, nil
	}

	colRows, err := scope.Conn.Query(ctx, columnSelect+`
		WHERE project_id = $1
		ORDER BY table_id, ordinal`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer colRows.Close()

	for colRows.Next() {
		c, err := scanColumn(colRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		if t, ok := byID[c.TableID]; ok {
			t.Columns = append(t.Columns, c)
		}
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}

	return tables, nil
}

func (r *tableRepository) ColumnsOf(ctx context.Context, projectID, tableID uuid.UUID) ([]*models.Column, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	rows, err := scope.Conn.Query(ctx, columnSelect+`
		WHERE project_id = $1 AND table_id = $2
		ORDER BY ordinal`, projectID, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	cols := make([]*models.Column, 0)
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns: %w", err)
	}
	return cols, nil
}

func (r *tableRepository) Delete(ctx context.Context, projectID, tableID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		DELETE FROM linkage_tables WHERE project_id = $1 AND id = $2`, projectID, tableID)
	if err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("table %s: %w", tableID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *tableRepository) UpdateStats(ctx context.Context, projectID, tableID uuid.UUID, rowCount int, stats []models.ColumnStats) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		UPDATE linkage_tables SET row_count = $3
		WHERE project_id = $1 AND id = $2`, projectID, tableID, rowCount)
	for _, s := range stats {
		samples := s.SampleValues
		if samples == nil {
			samples = []string{}
		}
		batch.Queue(`
			UPDATE linkage_columns
			SET unique_count = $3, null_count = $4, sample_values = $5
			WHERE project_id = $1 AND id = $2`,
			projectID, s.ColumnID, s.UniqueCount, s.NullCount, samples)
	}

	if err := scope.Conn.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to update table statistics: %w", err)
	}
	return nil
}

func (r *tableRepository) UpdateColumnFlags(ctx context.Context, projectID, columnID uuid.UUID, flags ColumnFlags) (*models.Column, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `
		UPDATE linkage_columns
		SET is_primary_key = COALESCE($3, is_primary_key),
		    is_validation_scope = COALESCE($4, is_validation_scope)
		WHERE project_id = $1 AND id = $2
		RETURNING id, table_id, name, ordinal, is_primary_key, is_validation_scope,
		          unique_count, null_count, sample_values, linked_to_column_id`,
		projectID, columnID, flags.IsPrimaryKey, flags.IsValidationScope)

	c, err := scanColumn(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("column %s: %w", columnID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to update column flags: %w", err)
	}
	return c, nil
}

func (r *tableRepository) SetLinkedTo(ctx context.Context, projectID, columnID uuid.UUID, linkedTo *uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE linkage_columns SET linked_to_column_id = $3
		WHERE project_id = $1 AND id = $2`, projectID, columnID, linkedTo)
	if err != nil {
		return fmt.Errorf("failed to set linked column: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("column %s: %w", columnID, apperrors.ErrNotFound)
	}
	return nil
}

func scanTable(row pgx.Row) (*models.Table, error) {
	var t models.Table
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Kind, &t.Location, &t.RowCount, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanColumn(row pgx.Row) (*models.Column, error) {
	var c models.Column
	err := row.Scan(&c.ID, &c.TableID, &c.Name, &c.Index, &c.IsPrimaryKey, &c.IsValidationScope,
		&c.UniqueCount, &c.NullCount, &c.SampleValues, &c.LinkedToColumnID)
	if err != nil {
		return nil, err
	}
	if c.SampleValues == nil {
		c.SampleValues = []string{}
	}
	return &c, nil
}
