package services

import (
	"strings"
)

const (
	// ExactNameScore is added when normalized column names are equal.
	ExactNameScore = 0.4
	// PartialNameScore is added when one normalized name contains the other.
	PartialNameScore = 0.2
	// MatchThreshold is the score a pair must exceed to be a match.
	MatchThreshold = 0.5
)

// NormalizeName lowercases a column name and drops every character outside [a-z0-9].
func NormalizeName(name string) string {
	lower := strings.ToLower(name)
	var b strings.Builder
	b.Grow(len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NameScore scores column name similarity. It is symmetric in its arguments.
func NameScore(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return ExactNameScore
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return PartialNameScore
	}
	return 0
}

// OverlapScore returns the fraction of target values found in candidate values,
// and how many were found. It is 0 for an empty target set.
func OverlapScore(targetValues, candidateValues ValueSet) (float64, int) {
	if len(targetValues) == 0 {
		return 0, 0
	}
	common := 0
	for v := range targetValues {
		if candidateValues.Has(v) {
			common++
		}
	}
	return float64(common) / float64(len(targetValues)), common
}

// ScoreLink scores a candidate reference column against a checked (target) column.
// Overlap is measured from the target's side: a candidate holding a superset of
// the target's values scores the full 1.0.
func ScoreLink(targetName string, targetValues ValueSet, candidateName string, candidateValues ValueSet) float64 {
	return scorePair(targetName, targetValues, candidateName, candidateValues).score
}

// IsAcceptableMatch reports whether a score is high enough to suggest a link.
func IsAcceptableMatch(score float64) bool {
	return score > MatchThreshold
}

type pairScore struct {
	score   float64
	overlap float64
	common  int
}

func scorePair(targetName string, targetValues ValueSet, candidateName string, candidateValues ValueSet) pairScore {
	overlap, common := OverlapScore(targetValues, candidateValues)
	return pairScore{
		score:   overlap + NameScore(targetName, candidateName),
		overlap: overlap,
		common:  common,
	}
}
