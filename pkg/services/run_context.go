package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/loader"
	"github.com/ekaya-inc/ekaya-linkage/pkg/logging"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// RunContext caches table data for the duration of one discovery or validation
// run. Each table is read through the loader at most once. It is safe for
// concurrent use by the checkers of a run.
type RunContext struct {
	loader      loader.TabularLoader
	sampleLimit int
	logger      *zap.Logger

	mu       sync.Mutex
	entries  map[uuid.UUID]*tableEntry
	sets     map[[2]uuid.UUID]ValueSet
	warnings []string
}

type tableEntry struct {
	once sync.Once
	rows [][]string
	err  error
	// width is the number of header cells, or -1 when the file could not be read.
	width int

	indexOnce sync.Once
	index     *ValueIndex
}

// NewRunContext creates a RunContext for a single run.
func NewRunContext(l loader.TabularLoader, sampleLimit int, logger *zap.Logger) *RunContext {
	return &RunContext{
		loader:      l,
		sampleLimit: sampleLimit,
		logger:      logger.Named("run"),
		entries:     make(map[uuid.UUID]*tableEntry),
		sets:        make(map[[2]uuid.UUID]ValueSet),
	}
}

func (rc *RunContext) entry(id uuid.UUID) *tableEntry {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	e, ok := rc.entries[id]
	if !ok {
		e = &tableEntry{}
		rc.entries[id] = e
	}
	return e
}

// Rows returns the data rows of a table, header excluded. A table that cannot
// be loaded is recorded as a warning once and yields zero rows. Only errors
// other than load failures, such as cancellation, are returned.
func (rc *RunContext) Rows(ctx context.Context, table *models.Table) ([][]string, error) {
	e := rc.entry(table.ID)
	e.once.Do(func() {
		rows, err := rc.loader.Load(ctx, table.Location)
		if err != nil {
			var le *apperrors.LoadError
			if errors.As(err, &le) {
				rc.addWarning(fmt.Sprintf("Table %s skipped: %s", table.Name, le.Reason))
				rc.logger.Warn("Table could not be loaded",
					zap.String("table", table.Name),
					zap.String("location", logging.SanitizeLocation(table.Location)),
					zap.String("reason", le.Reason))
				e.rows = [][]string{}
				e.width = -1
				return
			}
			e.err = fmt.Errorf("load table %s: %w", table.Name, err)
			return
		}
		e.width = -1
		if len(rows) > 0 {
			e.width = len(rows[0])
			rows = rows[1:]
		}
		e.rows = rows
	})
	return e.rows, e.err
}

// Index returns the value index of a table, building it on first use.
func (rc *RunContext) Index(ctx context.Context, table *models.Table) (*ValueIndex, error) {
	rows, err := rc.Rows(ctx, table)
	if err != nil {
		return nil, err
	}
	e := rc.entry(table.ID)
	e.indexOnce.Do(func() {
		e.index = BuildValueIndex(table, rows, rc.sampleLimit)
	})
	return e.index, nil
}

// MissingColumns returns the columns positioned past the header of the loaded
// file. A table that could not be read reports none, its load warning covers it.
func (rc *RunContext) MissingColumns(ctx context.Context, table *models.Table, cols ...*models.Column) ([]*models.Column, error) {
	if _, err := rc.Rows(ctx, table); err != nil {
		return nil, err
	}
	e := rc.entry(table.ID)
	if e.width < 0 {
		return nil, nil
	}
	var missing []*models.Column
	for _, c := range cols {
		if c.Index >= e.width {
			missing = append(missing, c)
		}
	}
	return missing, nil
}

// ColumnValues returns the trimmed values of a column in row order.
func (rc *RunContext) ColumnValues(ctx context.Context, table *models.Table, col *models.Column) ([]string, error) {
	rows, err := rc.Rows(ctx, table)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(rows))
	for i, row := range rows {
		values[i] = loader.Cell(row, col.Index)
	}
	return values, nil
}

// ValueSet returns every distinct non-empty value of a column over all rows.
func (rc *RunContext) ValueSet(ctx context.Context, table *models.Table, col *models.Column) (ValueSet, error) {
	key := [2]uuid.UUID{table.ID, col.ID}
	rc.mu.Lock()
	set, ok := rc.sets[key]
	rc.mu.Unlock()
	if ok {
		return set, nil
	}

	values, err := rc.ColumnValues(ctx, table, col)
	if err != nil {
		return nil, err
	}
	set = NewValueSet(values...)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if existing, ok := rc.sets[key]; ok {
		return existing, nil
	}
	rc.sets[key] = set
	return set, nil
}

func (rc *RunContext) addWarning(w string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.warnings = append(rc.warnings, w)
}

// Warnings returns the load warnings recorded so far.
func (rc *RunContext) Warnings() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]string, len(rc.warnings))
	copy(out, rc.warnings)
	return out
}
