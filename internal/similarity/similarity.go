// Package similarity holds the pure string and geo scoring primitives used
// by the matcher, the dedupe sweep, and the search engine.
package similarity

import "strings"

// Levenshtein computes the edit distance between two case-folded strings
// using the two-row dynamic programming form: O(|a|·|b|) time,
// O(min(|a|,|b|)) space.
func Levenshtein(a, b string) int {
	a = Fold(a)
	b = Fold(b)
	if a == b {
		return 0
	}
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	// Keep ra the shorter side so the rows stay small.
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			curr[i] = min(prev[i]+1, curr[i-1]+1, prev[i-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(ra)]
}

// Similarity returns a normalized score in [0,1]: 1 for two empty strings,
// otherwise 1 − distance/max(len).
func Similarity(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 && lb == 0 {
		return 1
	}
	longest := max(la, lb)
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// FuzzyMatch scores query against text at word level. A single-token query
// scores as its best similarity against any token of text; a multi-token
// query averages each query token's best similarity. Rewards partial matches
// (a one-word brand query against a multi-word business name) without
// requiring substring containment.
func FuzzyMatch(text, query string) float64 {
	textTokens := strings.Fields(Fold(text))
	queryTokens := strings.Fields(Fold(query))
	if len(textTokens) == 0 || len(queryTokens) == 0 {
		return 0
	}

	var sum float64
	for _, q := range queryTokens {
		best := 0.0
		for _, t := range textTokens {
			if s := Similarity(t, q); s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(queryTokens))
}
