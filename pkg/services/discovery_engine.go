package services

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ekaya-inc/ekaya-linkage/pkg/config"
	"github.com/ekaya-inc/ekaya-linkage/pkg/models"
)

// DiscoveryMode selects which suggestion kinds a discovery run produces.
type DiscoveryMode string

const (
	DiscoveryModeAll        DiscoveryMode = "all"
	DiscoveryModeMappings   DiscoveryMode = "mappings"
	DiscoveryModeReferences DiscoveryMode = "references"
)

// ParseDiscoveryMode maps a request parameter to a mode; empty means all.
func ParseDiscoveryMode(s string) (DiscoveryMode, bool) {
	switch DiscoveryMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DiscoveryModeAll:
		return DiscoveryModeAll, true
	case DiscoveryModeMappings:
		return DiscoveryModeMappings, true
	case DiscoveryModeReferences:
		return DiscoveryModeReferences, true
	default:
		return "", false
	}
}

// identifierPattern matches accent-folded, lowercased column names that look like keys.
var identifierPattern = regexp.MustCompile(`id|code|num|key|kod|cislo|klic`)

// DiscoveryEngine proposes links between tables from column names and value overlap.
// It is a pure function of its inputs.
type DiscoveryEngine struct {
	keyVocabulary       map[string]bool
	referenceUniqueness float64
	referenceOverlap    float64
	logger              *zap.Logger
}

// NewDiscoveryEngine creates a DiscoveryEngine.
func NewDiscoveryEngine(cfg config.ValidationConfig, logger *zap.Logger) *DiscoveryEngine {
	vocab := make(map[string]bool, len(cfg.KeyVocabulary))
	for _, k := range cfg.KeyVocabulary {
		if f := keyName(k); f != "" {
			vocab[f] = true
		}
	}
	return &DiscoveryEngine{
		keyVocabulary:       vocab,
		referenceUniqueness: cfg.ReferenceUniqueness,
		referenceOverlap:    cfg.ReferenceOverlap,
		logger:              logger.Named("discovery-engine"),
	}
}

// columnMatch is the best candidate column found for one target column.
type columnMatch struct {
	target    *ColumnIndex
	candidate *ColumnIndex
	pairScore
}

// Discover proposes links for every TARGET table in indexes. Suggestions already
// reflected by an existing link are not emitted again.
func (e *DiscoveryEngine) Discover(indexes []*ValueIndex, existing []*models.Link, mode DiscoveryMode) []models.LinkSuggestion {
	linked := make(map[[2]uuid.UUID]bool, len(existing))
	for _, l := range existing {
		linked[[2]uuid.UUID{l.CheckedColumnID, l.ReferenceColumnID}] = true
	}

	suggestions := make([]models.LinkSuggestion, 0)
	emit := func(s models.LinkSuggestion) {
		if s.SourceColumnID == s.TargetColumnID {
			return
		}
		if linked[[2]uuid.UUID{s.TargetColumnID, s.SourceColumnID}] {
			return
		}
		suggestions = append(suggestions, s)
	}

	if mode != DiscoveryModeReferences {
		for _, target := range indexes {
			if target.Table.Kind != models.TableKindTarget {
				continue
			}
			for _, s := range e.discoverMappings(target, indexes) {
				emit(s)
			}
		}
	}

	if mode != DiscoveryModeMappings {
		for _, s := range e.discoverReferences(indexes) {
			emit(s)
		}
	}

	e.logger.Debug("Discovery completed",
		zap.Int("tables", len(indexes)),
		zap.Int("suggestions", len(suggestions)),
		zap.String("mode", string(mode)))

	return suggestions
}

// discoverMappings picks one winning candidate table for the target table and
// proposes a link for every matched column of it.
func (e *DiscoveryEngine) discoverMappings(target *ValueIndex, indexes []*ValueIndex) []models.LinkSuggestion {
	var winner *ValueIndex
	var winnerMatches []columnMatch
	winnerScore := 0.0

	for _, candidate := range indexes {
		if !candidate.Table.Kind.IsCandidateKind() {
			continue
		}
		matches, aggregate := bestColumnMatches(target, candidate)
		if len(matches) == 0 {
			continue
		}
		if aggregate > winnerScore {
			winner, winnerMatches, winnerScore = candidate, matches, aggregate
		}
	}

	if winner == nil {
		return nil
	}

	e.logger.Debug("Selected source table",
		zap.String("target", target.Table.Name),
		zap.String("source", winner.Table.Name),
		zap.Float64("aggregate_score", winnerScore),
		zap.Int("matched_columns", len(winnerMatches)))

	keyIdx := e.selectKeyMatch(winnerMatches)

	out := make([]models.LinkSuggestion, 0, len(winnerMatches))
	for i, m := range winnerMatches {
		out = append(out, models.LinkSuggestion{
			Kind:            models.SuggestionKindMapping,
			SourceColumnID:  m.candidate.Column.ID,
			TargetColumnID:  m.target.Column.ID,
			SourceTable:     winner.Table.Name,
			SourceColumn:    m.candidate.Column.Name,
			TargetTable:     target.Table.Name,
			TargetColumn:    m.target.Column.Name,
			MatchPercentage: percentage(m.overlap),
			CommonValues:    m.common,
			Score:           m.score,
			IsKey:           i == keyIdx,
		})
	}
	return out
}

// bestColumnMatches finds, for each target column, the candidate column with the
// strictly greatest acceptable score. Ties keep the earlier candidate column.
func bestColumnMatches(target, candidate *ValueIndex) ([]columnMatch, float64) {
	var matches []columnMatch
	aggregate := 0.0

	for _, tc := range target.Columns {
		var best *columnMatch
		for _, cc := range candidate.Columns {
			ps := scorePair(tc.Column.Name, tc.Values, cc.Column.Name, cc.Values)
			if !IsAcceptableMatch(ps.score) {
				continue
			}
			if best == nil || ps.score > best.score {
				best = &columnMatch{target: tc, candidate: cc, pairScore: ps}
			}
		}
		if best != nil {
			matches = append(matches, *best)
			aggregate += best.score
		}
	}
	return matches, aggregate
}

// selectKeyMatch returns the index of the match to mark as key: first a column
// named from the key vocabulary, then the first column whose name contains "id".
// Returns -1 when neither exists.
func (e *DiscoveryEngine) selectKeyMatch(matches []columnMatch) int {
	for i, m := range matches {
		if e.keyVocabulary[keyName(m.target.Column.Name)] || e.keyVocabulary[keyName(m.candidate.Column.Name)] {
			return i
		}
	}
	for i, m := range matches {
		if strings.Contains(NormalizeName(m.target.Column.Name), "id") ||
			strings.Contains(NormalizeName(m.candidate.Column.Name), "id") {
			return i
		}
	}
	return -1
}

// discoverReferences finds identifier-like target columns whose values are drawn
// from a same-named, mostly unique column of another target table.
func (e *DiscoveryEngine) discoverReferences(indexes []*ValueIndex) []models.LinkSuggestion {
	var out []models.LinkSuggestion

	for _, from := range indexes {
		if from.Table.Kind != models.TableKindTarget {
			continue
		}
		for _, fc := range from.Columns {
			if !IsIdentifierLike(fc.Column.Name) || len(fc.Values) == 0 {
				continue
			}
			name := NormalizeName(fc.Column.Name)

			for _, to := range indexes {
				if to == from || to.Table.Kind != models.TableKindTarget || to.RowCount == 0 {
					continue
				}
				for _, tc := range to.Columns {
					if NormalizeName(tc.Column.Name) != name {
						continue
					}
					uniqueness := float64(tc.UniqueCount) / float64(to.RowCount)
					if uniqueness < e.referenceUniqueness {
						continue
					}
					overlap, common := OverlapScore(fc.Values, tc.Values)
					if overlap <= e.referenceOverlap {
						continue
					}
					out = append(out, models.LinkSuggestion{
						Kind:            models.SuggestionKindReference,
						SourceColumnID:  tc.Column.ID,
						TargetColumnID:  fc.Column.ID,
						SourceTable:     to.Table.Name,
						SourceColumn:    tc.Column.Name,
						TargetTable:     from.Table.Name,
						TargetColumn:    fc.Column.Name,
						MatchPercentage: percentage(overlap),
						CommonValues:    common,
						Score:           overlap,
					})
				}
			}
		}
	}
	return out
}

// IsIdentifierLike reports whether a column name looks like a key or reference.
func IsIdentifierLike(name string) bool {
	return identifierPattern.MatchString(foldName(name))
}

// foldName lowercases, removes diacritics and drops non-alphanumerics, so that
// "Číslo účtu" folds to "cislouctu" and "Account Number" to "accountnumber".
func foldName(name string) string {
	return NormalizeName(stripDiacritics(name))
}

// keyName compares names against the key vocabulary: case and diacritics are
// ignored, punctuation is not.
func keyName(name string) string {
	return strings.ToLower(strings.TrimSpace(stripDiacritics(name)))
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func percentage(f float64) int {
	return int(math.Round(f * 100))
}
