package services

import (
	"sort"

	"github.com/ekaya-inc/ekaya-linkage/pkg/loader"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// DefaultSampleLimit is how many rows feed a column's value set when no limit is configured.
const DefaultSampleLimit = 200

// ValueSet is a set of trimmed, non-empty cell values.
type ValueSet map[string]struct{}

// NewValueSet builds a set from values, skipping empty strings.
func NewValueSet(values ...string) ValueSet {
	s := make(ValueSet, len(values))
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
	return s
}

// Has reports whether v is in the set.
func (s ValueSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the set's values in ascending order.
func (s ValueSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ColumnIndex holds the sampled value set and full-table statistics of one column.
type ColumnIndex struct {
	Column *models.Column
	Values ValueSet

	// Computed over all rows, not just the sample.
	UniqueCount int
	NullCount   int

	// First distinct values in row order, at most models.MaxSampleValuesShown.
	SampleValues []string
}

// ValueIndex is the per-column value index of one table.
type ValueIndex struct {
	Table    *models.Table
	RowCount int
	Columns  []*ColumnIndex
}

// Column returns the index of the named column, or nil.
func (vi *ValueIndex) Column(name string) *ColumnIndex {
	for _, c := range vi.Columns {
		if c.Column.Name == name {
			return c
		}
	}
	return nil
}

// Stats returns the column statistics to persist for display.
func (vi *ValueIndex) Stats() []models.ColumnStats {
	stats := make([]models.ColumnStats, 0, len(vi.Columns))
	for _, c := range vi.Columns {
		stats = append(stats, models.ColumnStats{
			ColumnID:     c.Column.ID,
			UniqueCount:  c.UniqueCount,
			NullCount:    c.NullCount,
			SampleValues: c.SampleValues,
		})
	}
	return stats
}

// BuildValueIndex indexes the data rows (header excluded) of a table. Value sets
// contain the trimmed, non-empty values of the first sampleLimit rows; counts
// cover every row. Empty cells count as null.
func BuildValueIndex(table *models.Table, rows [][]string, sampleLimit int) *ValueIndex {
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}

	vi := &ValueIndex{
		Table:    table,
		RowCount: len(rows),
		Columns:  make([]*ColumnIndex, 0, len(table.Columns)),
	}

	for _, col := range table.Columns {
		ci := &ColumnIndex{
			Column:       col,
			Values:       make(ValueSet),
			SampleValues: make([]string, 0, models.MaxSampleValuesShown),
		}
		distinct := make(map[string]struct{})

		for i, row := range rows {
			v := loader.Cell(row, col.Index)
			if v == "" {
				ci.NullCount++
				continue
			}
			if _, seen := distinct[v]; !seen {
				distinct[v] = struct{}{}
				if len(ci.SampleValues) < models.MaxSampleValuesShown {
					ci.SampleValues = append(ci.SampleValues, v)
				}
			}
			if i < sampleLimit {
				ci.Values[v] = struct{}{}
			}
		}

		ci.UniqueCount = len(distinct)
		vi.Columns = append(vi.Columns, ci)
	}

	return vi
}
