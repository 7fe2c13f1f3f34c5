package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrigramSimilarity(t *testing.T) {
	tests := []struct {
		name string
		s1   string
		s2   string
		want float64
	}{
		{"identical", "great park ice", "great park ice", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "great park ice", "", 0.0},
		{"disjoint", "abc", "xyz", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TrigramSimilarity(tt.s1, tt.s2), 1e-9)
		})
	}
}

func TestTrigramSimilarityBounds(t *testing.T) {
	pairs := [][2]string{
		{"great park ice", "great park ice fivepoint arena"},
		{"toyota sports performance center", "tspc"},
		{"ice center", "ice centre"},
		{"yorba linda ice", "yorba linda"},
		{"a", "ab"},
	}

	for _, pair := range pairs {
		score := TrigramSimilarity(pair[0], pair[1])
		assert.GreaterOrEqual(t, score, 0.0, "pair=%v", pair)
		assert.LessOrEqual(t, score, 1.0, "pair=%v", pair)
	}
}

func TestTrigramSimilaritySymmetric(t *testing.T) {
	s1, s2 := "great park ice", "grand park rink"
	assert.Equal(t, TrigramSimilarity(s1, s2), TrigramSimilarity(s2, s1))
}

func TestTokenDiceSimilarity(t *testing.T) {
	// 3 shared tokens out of 3 + 5 distinct tokens.
	score := TokenDiceSimilarity("great park ice", "great park ice fivepoint arena")
	assert.InDelta(t, 0.75, score, 1e-9)

	assert.Equal(t, 1.0, TokenDiceSimilarity("", ""))
	assert.Equal(t, 0.0, TokenDiceSimilarity("great park ice", ""))
	assert.Equal(t, 1.0, TokenDiceSimilarity("ice center", "center ice"))
}

func TestNameSimilarityPrefersBetterMeasure(t *testing.T) {
	// Sponsor-suffixed display names score poorly on trigrams but well on
	// tokens; the combined measure must land in the auto-save band.
	query := "great park ice"
	display := "great park ice fivepoint arena"

	trigram := TrigramSimilarity(query, display)
	combined := NameSimilarity(query, display)

	assert.Less(t, trigram, 0.70)
	assert.InDelta(t, 0.75, combined, 1e-9)
}
