package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Table Kinds
// ============================================================================

// TableKind describes the role an uploaded table plays during validation.
type TableKind string

const (
	// TableKindSource is a source-of-truth table.
	TableKindSource TableKind = "SOURCE"
	// TableKindTarget is a checked table.
	TableKindTarget TableKind = "TARGET"
	// TableKindForbidden is a blacklist: its values must not appear in checked columns.
	TableKindForbidden TableKind = "FORBIDDEN"
	// TableKindRange is a codebook: checked values must appear in it.
	TableKindRange TableKind = "RANGE"
)

// ValidTableKinds contains all valid table kind values.
var ValidTableKinds = []TableKind{
	TableKindSource,
	TableKindTarget,
	TableKindForbidden,
	TableKindRange,
}

// IsValidTableKind checks if the given kind is valid.
func IsValidTableKind(k TableKind) bool {
	for _, v := range ValidTableKinds {
		if v == k {
			return true
		}
	}
	return false
}

// IsCandidateKind reports whether tables of this kind may supply reference
// columns for a checked table during discovery.
func (k TableKind) IsCandidateKind() bool {
	return k == TableKindSource || k == TableKindForbidden || k == TableKindRange
}

// ============================================================================
// Table and Column
// ============================================================================

// MaxSampleValuesShown is how many sample values a column carries for display.
const MaxSampleValuesShown = 3

// Table is an uploaded tabular file registered in a project.
type Table struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Kind      TableKind `json:"kind"`
	Location  string    `json:"location"`
	RowCount  int       `json:"row_count"`
	Columns   []*Column `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

// ColumnByName returns the column with the given name, or nil.
func (t *Table) ColumnByName(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ColumnByID returns the column with the given ID, or nil.
func (t *Table) ColumnByID(id uuid.UUID) *Column {
	for _, c := range t.Columns {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// PrimaryKey returns the first column flagged as primary key, or nil.
func (t *Table) PrimaryKey() *Column {
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			return c
		}
	}
	return nil
}

// LookupColumn returns the column whose values form this table's value list when
// the table is referenced as a whole (blacklist or codebook). FORBIDDEN and RANGE
// tables use their first column; any other kind uses its declared primary key.
func (t *Table) LookupColumn() *Column {
	if t.Kind == TableKindForbidden || t.Kind == TableKindRange {
		if len(t.Columns) == 0 {
			return nil
		}
		return t.Columns[0]
	}
	return t.PrimaryKey()
}

// ScopeColumn returns the column flagged as validation scope, or nil.
func (t *Table) ScopeColumn() *Column {
	for _, c := range t.Columns {
		if c.IsValidationScope {
			return c
		}
	}
	return nil
}

// Column is a header of an uploaded table with statistics gathered during discovery.
type Column struct {
	ID                uuid.UUID  `json:"id"`
	TableID           uuid.UUID  `json:"table_id"`
	Name              string     `json:"name"`
	Index             int        `json:"index"`
	IsPrimaryKey      bool       `json:"is_primary_key"`
	IsValidationScope bool       `json:"is_validation_scope"`
	UniqueCount       int        `json:"unique_count"`
	NullCount         int        `json:"null_count"`
	SampleValues      []string   `json:"sample_values"`
	LinkedToColumnID  *uuid.UUID `json:"linked_to_column_id,omitempty"`
}

// ColumnStats is the statistics update written back after indexing a table.
type ColumnStats struct {
	ColumnID     uuid.UUID
	UniqueCount  int
	NullCount    int
	SampleValues []string
}
