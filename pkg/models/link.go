package models

import (
	"time"

	"github.com/google/uuid"
)

// LinkMetadata carries the typed attributes of an accepted link.
type LinkMetadata struct {
	// IsKey marks the key mapping of a source/target reconciliation pair.
	IsKey bool `json:"is_key"`
	// ForbiddenTableID attaches a blacklist table to the checked column.
	ForbiddenTableID *uuid.UUID `json:"forbidden_table_id,omitempty"`
	// CodebookTableID attaches an allow-list table checked during reconciliation.
	CodebookTableID *uuid.UUID `json:"codebook_table_id,omitempty"`
	// AutoDiscovered is true when the link was created from a suggestion.
	AutoDiscovered bool `json:"auto_discovered"`
	// Score is the discovery score the link was accepted with (0 when manual).
	Score float64 `json:"score"`
}

// Link is a persisted directional edge from a checked column to a reference column.
// At most one link per checked column is used for validation.
type Link struct {
	ID                uuid.UUID    `json:"id"`
	ProjectID         uuid.UUID    `json:"project_id"`
	CheckedColumnID   uuid.UUID    `json:"checked_column_id"`
	ReferenceColumnID uuid.UUID    `json:"reference_column_id"`
	Metadata          LinkMetadata `json:"metadata"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// SuggestionKind distinguishes source-of-truth mappings from target-to-target references.
type SuggestionKind string

const (
	SuggestionKindMapping   SuggestionKind = "mapping"
	SuggestionKindReference SuggestionKind = "reference"
)

// LinkSuggestion is a proposed link produced by discovery. It is never persisted
// unless accepted through the apply step.
type LinkSuggestion struct {
	Kind SuggestionKind `json:"kind"`

	// SourceColumnID is the reference column (source-of-truth or referenced target column).
	SourceColumnID uuid.UUID `json:"source_column_id"`
	// TargetColumnID is the checked column.
	TargetColumnID uuid.UUID `json:"target_column_id"`

	// Names (for display)
	SourceTable  string `json:"source_table"`
	SourceColumn string `json:"source_column"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`

	MatchPercentage int     `json:"match_percentage"` // 0..100
	CommonValues    int     `json:"common_values"`
	Score           float64 `json:"score"`
	IsKey           bool    `json:"is_key"`
}

// Metadata returns the link metadata an accepted suggestion is stored with.
func (s *LinkSuggestion) Metadata() LinkMetadata {
	return LinkMetadata{
		IsKey:          s.IsKey,
		AutoDiscovered: true,
		Score:          s.Score,
	}
}
