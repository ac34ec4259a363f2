// Package match implements free-text analysis name matching: synonym
// normalization and fuzzy catalog title lookup.
package match

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Score returns a 0-100 similarity between two strings. It takes the best
// of plain, partial, and token-sort ratios so that word-order differences
// and substrings still score high ("витамин d" vs "d витамин",
// "оак" vs "общий анализ крови (оак)"). Inputs are compared as given;
// callers lower-case both sides first.
func Score(a, b string) int {
	s := fuzzy.Ratio(a, b)
	if p := fuzzy.PartialRatio(a, b); p > s {
		s = p
	}
	if ts := fuzzy.TokenSortRatio(a, b); ts > s {
		s = ts
	}
	return s
}
