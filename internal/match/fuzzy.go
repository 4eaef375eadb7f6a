package match

import (
	"github.com/agext/levenshtein"
)

// fuzzyScoreCap is the highest score a fuzzy match can claim; scores above
// it are reserved for the exact tiers.
const fuzzyScoreCap = 0.92

// Similarity computes Levenshtein similarity between two normalized names
// on [0, 1].
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return levenshtein.Similarity(a, b, nil)
}

// FuzzyScore maps a raw similarity into the fuzzy tier's score band.
// Values at or above the exact-match range are capped so a fuzzy hit can
// never outrank an exact one.
func FuzzyScore(sim float64) float64 {
	if sim > fuzzyScoreCap {
		return fuzzyScoreCap
	}
	return sim
}
