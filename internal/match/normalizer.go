package match

import (
	"strings"
)

// SynonymThreshold is the minimum similarity score for a fuzzy synonym
// hit to resolve to its canonical name.
const SynonymThreshold = 85

// Normalizer resolves free-text analysis names against a synonym table.
type Normalizer struct {
	table *SynonymTable
}

// NewNormalizer creates a normalizer over the given synonym table.
func NewNormalizer(table *SynonymTable) *Normalizer {
	return &Normalizer{table: table}
}

// Normalize maps a free-text query to a canonical analysis name.
//
// The exact pass short-circuits the fuzzy one: a query equal to a
// canonical name or variant (case-insensitive) always resolves the same
// way regardless of fuzzy scores. When no candidate reaches
// SynonymThreshold the trimmed, lower-cased query is returned unchanged
// so downstream catalog matching still gets a literal attempt.
func (n *Normalizer) Normalize(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return q
	}

	if canonical, ok := n.table.Exact(q); ok {
		return canonical
	}

	bestScore := -1
	bestCanonical := ""
	for _, c := range n.table.candidates {
		if s := Score(q, c.term); s > bestScore {
			bestScore = s
			bestCanonical = c.canonical
		}
	}
	if bestScore >= SynonymThreshold {
		return bestCanonical
	}

	return q
}
