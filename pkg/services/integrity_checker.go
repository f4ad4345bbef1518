package services

import (
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// DefaultMaxShownValues caps the example values listed in an integrity or forbidden finding.
const DefaultMaxShownValues = 10

// ColumnRef names a column of a table for reporting.
type ColumnRef struct {
	Table  string
	Column string
}

// distinctNonEmpty returns the distinct non-empty values in first-seen order.
func distinctNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func capShown(values []string, maxShown int) ([]string, int) {
	if maxShown <= 0 {
		maxShown = DefaultMaxShownValues
	}
	if len(values) <= maxShown {
		return values, 0
	}
	return values[:maxShown], len(values) - maxShown
}

// CheckIntegrity reports the foreign values that are absent from the reference
// set. Empty foreign values are never flagged. Counts are of distinct values.
// Returns nil when nothing is missing.
func CheckIntegrity(fk ColumnRef, fkValues []string, pk ColumnRef, pkValues ValueSet, maxShown int) *models.IntegrityError {
	distinct := distinctNonEmpty(fkValues)

	missing := make([]string, 0)
	for _, v := range distinct {
		if !pkValues.Has(v) {
			missing = append(missing, v)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	shown, more := capShown(missing, maxShown)
	return &models.IntegrityError{
		FKTable:       fk.Table,
		FKColumn:      fk.Column,
		PKTable:       pk.Table,
		PKColumn:      pk.Column,
		MissingValues: shown,
		MoreMissing:   more,
		MissingCount:  len(missing),
		TotalFKValues: len(distinct),
	}
}
