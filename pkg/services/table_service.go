package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/loader"
	"github.com/ekaya-inc/ekaya-linkage/pkg/logging"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
	"github.com/ekaya-inc/ekaya-linkage/pkg/repositories"
)

// RegisterTableRequest describes an uploaded file to register as a table.
type RegisterTableRequest struct {
	Name     string           `json:"name"`
	Kind     models.TableKind `json:"kind"`
	Location string           `json:"location"`
	// PrimaryKey optionally names the column to flag as primary key.
	PrimaryKey string `json:"primary_key,omitempty"`
	// ScopeColumn optionally names the column to flag as validation scope.
	ScopeColumn string `json:"scope_column,omitempty"`
}

// TableService manages registered tables and their column flags.
type TableService interface {
	// Register reads the header row of the file and stores the table with its columns.
	Register(ctx context.Context, projectID uuid.UUID, req RegisterTableRequest) (*models.Table, error)

	// List returns all tables of a project.
	List(ctx context.Context, projectID uuid.UUID) ([]*models.Table, error)

	// Get returns a single table.
	Get(ctx context.Context, projectID, tableID uuid.UUID) (*models.Table, error)

	// Delete removes a table together with its columns, links and rules.
	Delete(ctx context.Context, projectID, tableID uuid.UUID) error

	// UpdateColumnFlags sets the primary key and validation scope flags of a column.
	UpdateColumnFlags(ctx context.Context, projectID, columnID uuid.UUID, flags repositories.ColumnFlags) (*models.Column, error)
}

type tableService struct {
	tableRepo repositories.TableRepository
	loader    loader.TabularLoader
	logger    *zap.Logger
}

var _ TableService = (*tableService)(nil)

// NewTableService creates a new table service.
func NewTableService(tableRepo repositories.TableRepository, l loader.TabularLoader, logger *zap.Logger) TableService {
	return &tableService{
		tableRepo: tableRepo,
		loader:    l,
		logger:    logger.Named("tables"),
	}
}

func (s *tableService) Register(ctx context.Context, projectID uuid.UUID, req RegisterTableRequest) (*models.Table, error) {
	kind := models.TableKind(strings.ToUpper(strings.TrimSpace(string(req.Kind))))
	if !models.IsValidTableKind(kind) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidKind, req.Kind)
	}

	rows, err := s.loader.Load(ctx, req.Location)
	if err != nil {
		return nil, fmt.Errorf("read table header: %w", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		base := filepath.Base(req.Location)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	table := &models.Table{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		Kind:      kind,
		Location:  req.Location,
		RowCount:  len(rows) - 1,
	}
	table.Columns = ColumnsFromHeader(table.ID, loader.Header(rows))

	if err := flagColumn(table, req.PrimaryKey, func(c *models.Column) { c.IsPrimaryKey = true }); err != nil {
		return nil, err
	}
	if err := flagColumn(table, req.ScopeColumn, func(c *models.Column) { c.IsValidationScope = true }); err != nil {
		return nil, err
	}

	if err := s.tableRepo.Create(ctx, table); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	s.logger.Info("Registered table",
		zap.String("project_id", projectID.String()),
		zap.String("table", table.Name),
		zap.String("kind", string(table.Kind)),
		zap.String("location", logging.SanitizeLocation(table.Location)),
		zap.Int("columns", len(table.Columns)),
		zap.Int("rows", table.RowCount))

	return table, nil
}

// ColumnsFromHeader builds the columns of a table from its header row. Blank
// names become column_<n> and repeated names get a numeric suffix.
func ColumnsFromHeader(tableID uuid.UUID, header []string) []*models.Column {
	cols := make([]*models.Column, 0, len(header))
	used := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			used[name] = 1
		}
		cols = append(cols, &models.Column{
			ID:           uuid.New(),
			TableID:      tableID,
			Name:         name,
			Index:        i,
			SampleValues: []string{},
		})
	}
	return cols
}

func flagColumn(table *models.Table, name string, set func(*models.Column)) error {
	if name == "" {
		return nil
	}
	c := table.ColumnByName(name)
	if c == nil {
		return fmt.Errorf("%w: table %s has no column %q", apperrors.ErrNotFound, table.Name, name)
	}
	set(c)
	return nil
}

func (s *tableService) List(ctx context.Context, projectID uuid.UUID) ([]*models.Table, error) {
	tables, err := s.tableRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

func (s *tableService) Get(ctx context.Context, projectID, tableID uuid.UUID) (*models.Table, error) {
	table, err := s.tableRepo.GetByID(ctx, projectID, tableID)
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	return table, nil
}

func (s *tableService) Delete(ctx context.Context, projectID, tableID uuid.UUID) error {
	if err := s.tableRepo.Delete(ctx, projectID, tableID); err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	s.logger.Info("Deleted table",
		zap.String("project_id", projectID.String()),
		zap.String("table_id", tableID.String()))
	return nil
}

func (s *tableService) UpdateColumnFlags(ctx context.Context, projectID, columnID uuid.UUID, flags repositories.ColumnFlags) (*models.Column, error) {
	col, err := s.tableRepo.UpdateColumnFlags(ctx, projectID, columnID, flags)
	if err != nil {
		return nil, fmt.Errorf("update column flags: %w", err)
	}
	return col, nil
}
