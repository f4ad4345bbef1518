package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Account Number", "accountnumber"},
		{"order_id", "orderid"},
		{"  ID  ", "id"},
		{"Číslo", "slo"},
		{"---", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNameScore(t *testing.T) {
	assert.Equal(t, ExactNameScore, NameScore("Order ID", "order_id"))
	assert.Equal(t, PartialNameScore, NameScore("customer_id", "id"))
	assert.Equal(t, PartialNameScore, NameScore("id", "customer_id"), "containment counts both ways")
	assert.Equal(t, 0.0, NameScore("state", "status"))
	assert.Equal(t, 0.0, NameScore("", "id"), "empty name never matches")
	assert.Equal(t, 0.0, NameScore("__", "id"))
}

func TestOverlapScore(t *testing.T) {
	t.Run("subset scores one", func(t *testing.T) {
		score, common := OverlapScore(NewValueSet("A", "B"), NewValueSet("A", "B", "C"))
		assert.Equal(t, 1.0, score)
		assert.Equal(t, 2, common)
	})

	t.Run("disjoint scores zero", func(t *testing.T) {
		score, common := OverlapScore(NewValueSet("X"), NewValueSet("A", "B"))
		assert.Equal(t, 0.0, score)
		assert.Equal(t, 0, common)
	})

	t.Run("empty target scores zero", func(t *testing.T) {
		score, _ := OverlapScore(NewValueSet(), NewValueSet("A"))
		assert.Equal(t, 0.0, score)
	})

	t.Run("measured from the target side", func(t *testing.T) {
		forward, _ := OverlapScore(NewValueSet("A", "B"), NewValueSet("A", "B", "C", "D"))
		backward, _ := OverlapScore(NewValueSet("A", "B", "C", "D"), NewValueSet("A", "B"))
		assert.Equal(t, 1.0, forward)
		assert.Equal(t, 0.5, backward)
	})
}

func TestScoreLink_StatusAgainstState(t *testing.T) {
	score := ScoreLink("state", NewValueSet("A", "B"), "status", NewValueSet("A", "B", "C"))

	assert.Equal(t, 1.0, score)
	assert.True(t, IsAcceptableMatch(score))
}

func TestScoreLink_ExactNameAddsToOverlap(t *testing.T) {
	score := ScoreLink("id", NewValueSet("1", "2"), "ID", NewValueSet("1", "2", "3"))
	assert.InDelta(t, 1.4, score, 1e-9)
}

func TestIsAcceptableMatch_ThresholdIsExclusive(t *testing.T) {
	half := ScoreLink("amount", NewValueSet("10", "25"), "balance", NewValueSet("10", "20"))
	assert.Equal(t, 0.5, half)
	assert.False(t, IsAcceptableMatch(half))
	assert.True(t, IsAcceptableMatch(0.51))
}
