package normalization

import (
	"strings"
	"unicode"
)

// TrigramSimilarity computes the Jaccard index over the rune trigram sets of
// the two strings. Returns a score in [0,1]; identical strings score 1.0.
// Strings shorter than three runes contribute themselves as a single gram.
func TrigramSimilarity(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	grams1 := trigramSet(s1)
	grams2 := trigramSet(s2)

	return jaccardIndex(grams1, grams2)
}

func trigramSet(text string) map[string]struct{} {
	text = strings.ToLower(strings.TrimSpace(text))
	grams := make(map[string]struct{})

	runes := []rune(text)
	if len(runes) < 3 {
		if len(runes) > 0 {
			grams[string(runes)] = struct{}{}
		}
		return grams
	}

	for i := 0; i <= len(runes)-3; i++ {
		grams[string(runes[i:i+3])] = struct{}{}
	}

	return grams
}

// TokenDiceSimilarity computes the Sørensen–Dice coefficient over the distinct
// word tokens of the two strings. More forgiving than trigrams when one name
// is a prefix of a longer sponsored form.
func TokenDiceSimilarity(s1, s2 string) float64 {
	tokens1 := tokenSet(s1)
	tokens2 := tokenSet(s2)

	if len(tokens1) == 0 && len(tokens2) == 0 {
		return 1.0
	}
	if len(tokens1) == 0 || len(tokens2) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range tokens1 {
		if _, ok := tokens2[token]; ok {
			intersection++
		}
	}

	return 2.0 * float64(intersection) / float64(len(tokens1)+len(tokens2))
}

func tokenSet(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, word := range words {
		tokens[word] = struct{}{}
	}
	return tokens
}

// NameSimilarity is the measure used for geocoding-confidence scoring: the
// better of trigram and token similarity, so both near-misspellings and
// sponsor-suffixed display names score sensibly.
func NameSimilarity(s1, s2 string) float64 {
	trigram := TrigramSimilarity(s1, s2)
	dice := TokenDiceSimilarity(s1, s2)
	if dice > trigram {
		return dice
	}
	return trigram
}

func jaccardIndex(set1, set2 map[string]struct{}) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for gram := range set1 {
		if _, ok := set2[gram]; ok {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}
