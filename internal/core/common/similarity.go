package common

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// Similarity is 1 - levenshtein(a,b)/max(len(a),len(b)), in [0,1].
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(maxLen)
}

// FoldedSimilarity compares a and b case-insensitively.
func FoldedSimilarity(a, b string) float64 {
	return Similarity(strings.ToLower(a), strings.ToLower(b))
}
