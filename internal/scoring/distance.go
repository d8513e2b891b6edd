// Package scoring compares recognizer predictions with annotated ground
// truth using edit distance.
package scoring

import "github.com/rivo/uniseg"

// Levenshtein returns the edit distance between a and b counted in Unicode
// code points.
func Levenshtein(a, b string) int {
	return distance([]rune(a), []rune(b))
}

// GraphemeLevenshtein returns the edit distance between a and b counted in
// extended grapheme clusters, so a consonant with its vowel sign is one unit.
func GraphemeLevenshtein(a, b string) int {
	return distance(graphemes(a), graphemes(b))
}

func graphemes(s string) []string {
	if s == "" {
		return nil
	}
	g := uniseg.NewGraphemes(s)
	out := make([]string, 0, len(s)/3+1)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

// distance is the two-row Wagner-Fischer recurrence.
func distance[T comparable](a, b []T) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
