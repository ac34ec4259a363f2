package match

import (
	"strings"
)

// CatalogThreshold is the minimum similarity score for a catalog title
// to count as a match for a query.
const CatalogThreshold = 60

// BestMatch returns the candidate title most similar to the query, or
// ("", false) when no candidate reaches CatalogThreshold. Both sides are
// lower-cased before scoring. Equal scores keep the first candidate in
// iteration order, so a fixed catalog ordering gives a deterministic
// result. An empty candidate list is not an error.
func BestMatch(query string, candidates []string) (string, bool) {
	q := strings.ToLower(query)

	bestScore := -1
	bestIdx := -1
	for i, c := range candidates {
		if s := Score(q, strings.ToLower(c)); s > bestScore {
			bestScore = s
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestScore < CatalogThreshold {
		return "", false
	}
	return candidates[bestIdx], true
}
