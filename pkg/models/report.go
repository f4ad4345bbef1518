package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
)

// The JSON field names in this file are the wire contract with the UI.

// IntegrityError reports foreign values absent from the reference column.
type IntegrityError struct {
	FKTable       string   `json:"fkTable"`
	FKColumn      string   `json:"fkColumn"`
	PKTable       string   `json:"pkTable"`
	PKColumn      string   `json:"pkColumn"`
	MissingValues []string `json:"missingValues"`
	MoreMissing   int      `json:"moreMissing"`
	MissingCount  int      `json:"missingCount"`
	TotalFKValues int      `json:"totalFkValues"`
}

// FindingType classifies a reconciliation finding.
type FindingType string

const (
	FindingValueMismatch     FindingType = "value_mismatch"
	FindingMissingRow        FindingType = "missing_row"
	FindingExtraRow          FindingType = "extra_row"
	FindingCodebookViolation FindingType = "codebook_violation"
)

// IsFailure reports whether findings of this type fail a check. Extra rows are informational.
func (f FindingType) IsFailure() bool {
	return f != FindingExtraRow
}

// ReconciliationFinding is one row-level result of comparing a checked table against
// its source of truth.
type ReconciliationFinding struct {
	Type        FindingType `json:"type"`
	SourceTable string      `json:"sourceTable"`
	TargetTable string      `json:"targetTable"`
	Key         string      `json:"key"`
	Column      string      `json:"column,omitempty"`
	Expected    string      `json:"expected,omitempty"`
	Actual      string      `json:"actual,omitempty"`
}

// ForbiddenError reports checked values present in a blacklist.
type ForbiddenError struct {
	TargetTable     string   `json:"targetTable"`
	Column          string   `json:"column"`
	ForbiddenTable  string   `json:"forbiddenTable"`
	ForbiddenColumn string   `json:"forbiddenColumn"`
	FoundValues     []string `json:"foundValues"`
	Count           int      `json:"count"`
}

// RuleSample is one failing row of a rule.
type RuleSample struct {
	RowIndex int    `json:"rowIndex"`
	Value    string `json:"value"`
}

// RuleFailure is the result of evaluating one rule that had failing rows.
type RuleFailure struct {
	RuleID      uuid.UUID    `json:"ruleId"`
	Table       string       `json:"table"`
	Column      string       `json:"column"`
	RuleType    RuleType     `json:"ruleType"`
	Description string       `json:"description"`
	FailedCount int          `json:"failedCount"`
	Samples     []RuleSample `json:"samples"`
}

// ReportSummary counts executed checks.
type ReportSummary struct {
	TotalChecks int `json:"totalChecks"`
	Passed      int `json:"passed"`
	Failed      int `json:"failed"`
}

// ValidationReport is produced fresh by every validation run.
type ValidationReport struct {
	Errors         []IntegrityError        `json:"errors"`
	Reconciliation []ReconciliationFinding `json:"reconciliation"`
	Forbidden      []ForbiddenError        `json:"forbidden"`
	RuleFailures   []RuleFailure           `json:"ruleFailures"`
	SetupErrors    []apperrors.SetupError  `json:"setupErrors"`
	Warnings       []string                `json:"warnings"`
	Summary        ReportSummary           `json:"summary"`
	GeneratedAt    time.Time               `json:"generatedAt"`
}

// NewValidationReport returns a report with empty, non-nil slices so the JSON
// shape never contains nulls.
func NewValidationReport() *ValidationReport {
	return &ValidationReport{
		Errors:         []IntegrityError{},
		Reconciliation: []ReconciliationFinding{},
		Forbidden:      []ForbiddenError{},
		RuleFailures:   []RuleFailure{},
		SetupErrors:    []apperrors.SetupError{},
		Warnings:       []string{},
		GeneratedAt:    time.Now().UTC(),
	}
}
