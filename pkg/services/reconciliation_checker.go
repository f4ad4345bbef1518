package services

import (
	"fmt"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-linkage/pkg/loader"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// Codebook is an allow-list that mapped target values must belong to.
type Codebook struct {
	Ref    ColumnRef
	Values ValueSet
}

// ColumnPair maps a source-of-truth column to the checked column it should equal.
type ColumnPair struct {
	Source   *models.Column
	Target   *models.Column
	Codebook *Codebook
}

// ScopeFilter restricts the source rows taken into comparison to those whose
// Column value is in Allowed. An empty Allowed set excludes every row.
type ScopeFilter struct {
	Column  *models.Column
	Allowed ValueSet
}

// ReconcileInput is one (target, source) pair with its loaded data rows.
type ReconcileInput struct {
	Source     *models.Table
	SourceRows [][]string
	Target     *models.Table
	TargetRows [][]string

	// Key is nil when no key mapping has been applied.
	Key    *ColumnPair
	Values []ColumnPair
	Scope  *ScopeFilter
}

// ReconcileResult holds the findings of one pair. SetupErrors is non-empty when
// the pair could not be compared.
type ReconcileResult struct {
	Findings    []models.ReconciliationFinding
	SetupErrors []apperrors.SetupError
}

// Failed reports whether the pair produced a setup error or a failing finding.
func (r ReconcileResult) Failed() bool {
	if len(r.SetupErrors) > 0 {
		return true
	}
	for _, f := range r.Findings {
		if f.Type.IsFailure() {
			return true
		}
	}
	return false
}

// PairName names a checked table and its source of truth in messages.
func PairName(target, source string) string {
	return target + " -> " + source
}

// CountNoun formats a count followed by the noun in the agreeing number,
// e.g. "1 column" or "3 entries".
func CountNoun(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}

// Reconcile compares the checked table row by row against its source of truth
// using the key mapping. Findings are ordered by source row, with extra target
// rows appended last.
func Reconcile(in ReconcileInput) ReconcileResult {
	result := ReconcileResult{
		Findings:    []models.ReconciliationFinding{},
		SetupErrors: []apperrors.SetupError{},
	}
	pair := PairName(in.Target.Name, in.Source.Name)

	if in.Key == nil {
		result.SetupErrors = append(result.SetupErrors, apperrors.SetupError{
			Pair:    pair,
			Kind:    apperrors.SetupMissingKey,
			Message: fmt.Sprintf("No Primary Key defined for %s", pair),
		})
		return result
	}

	srcKeyIdx := in.Key.Source.Index
	tgtKeyIdx := in.Key.Target.Index

	// Source side: scope filter, then duplicate detection.
	sourceByKey := make(map[string][]string, len(in.SourceRows))
	sourceOrder := make([]string, 0, len(in.SourceRows))
	excluded := make(map[string]struct{})
	duplicates := make([]string, 0)
	dupSeen := make(map[string]struct{})

	for _, row := range in.SourceRows {
		key := loader.Cell(row, srcKeyIdx)
		if key == "" {
			continue
		}
		if in.Scope != nil && !in.Scope.Allowed.Has(loader.Cell(row, in.Scope.Column.Index)) {
			excluded[key] = struct{}{}
			continue
		}
		if _, exists := sourceByKey[key]; exists {
			if _, counted := dupSeen[key]; !counted {
				dupSeen[key] = struct{}{}
				duplicates = append(duplicates, key)
			}
			continue
		}
		sourceByKey[key] = row
		sourceOrder = append(sourceOrder, key)
	}

	if len(duplicates) > 0 {
		result.SetupErrors = append(result.SetupErrors, apperrors.SetupError{
			Pair: pair,
			Kind: apperrors.SetupDuplicateKey,
			Message: fmt.Sprintf("Key column %s.%s has %s duplicated (e.g. %q) in %s",
				in.Source.Name, in.Key.Source.Name, CountNoun(len(duplicates), "value"), duplicates[0], pair),
		})
		return result
	}

	// Target side keeps the first row per key.
	targetByKey := make(map[string][]string, len(in.TargetRows))
	targetOrder := make([]string, 0, len(in.TargetRows))
	for _, row := range in.TargetRows {
		key := loader.Cell(row, tgtKeyIdx)
		if key == "" {
			continue
		}
		if _, exists := targetByKey[key]; exists {
			continue
		}
		targetByKey[key] = row
		targetOrder = append(targetOrder, key)
	}

	for _, key := range sourceOrder {
		srcRow := sourceByKey[key]
		tgtRow, ok := targetByKey[key]
		if !ok {
			result.Findings = append(result.Findings, models.ReconciliationFinding{
				Type:        models.FindingMissingRow,
				SourceTable: in.Source.Name,
				TargetTable: in.Target.Name,
				Key:         key,
			})
			continue
		}

		for _, cp := range in.Values {
			expected := loader.Cell(srcRow, cp.Source.Index)
			actual := loader.Cell(tgtRow, cp.Target.Index)
			if expected != actual {
				result.Findings = append(result.Findings, models.ReconciliationFinding{
					Type:        models.FindingValueMismatch,
					SourceTable: in.Source.Name,
					TargetTable: in.Target.Name,
					Key:         key,
					Column:      cp.Target.Name,
					Expected:    expected,
					Actual:      actual,
				})
			}
			if cp.Codebook != nil && actual != "" && !cp.Codebook.Values.Has(actual) {
				result.Findings = append(result.Findings, models.ReconciliationFinding{
					Type:        models.FindingCodebookViolation,
					SourceTable: cp.Codebook.Ref.Table,
					TargetTable: in.Target.Name,
					Key:         key,
					Column:      cp.Target.Name,
					Actual:      actual,
				})
			}
		}
	}

	for _, key := range targetOrder {
		if _, ok := sourceByKey[key]; ok {
			continue
		}
		if _, ok := excluded[key]; ok {
			continue
		}
		result.Findings = append(result.Findings, models.ReconciliationFinding{
			Type:        models.FindingExtraRow,
			SourceTable: in.Source.Name,
			TargetTable: in.Target.Name,
			Key:         key,
		})
	}

	return result
}
