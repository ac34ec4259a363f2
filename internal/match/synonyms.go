package match

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// SynonymTable maps canonical analysis names to alternate spellings.
// It is static configuration: loaded once at process start, immutable at
// runtime, and passed explicitly to the functions that need it.
//
// A variant must belong to exactly one canonical entry; an ambiguous
// variant is a configuration bug, and the last loaded entry wins.
type SynonymTable struct {
	byTerm     map[string]string // lowered canonical or variant -> canonical
	candidates []candidate       // flattened list in stable order
}

// candidate pairs a scoring term with the canonical name it resolves to.
type candidate struct {
	term      string // lower-cased canonical or variant
	canonical string
}

// NewSynonymTable builds a table from canonical name -> variants entries.
// Candidates are ordered by canonical name (then variant order as given)
// so fuzzy tie-breaks stay deterministic across runs.
func NewSynonymTable(entries map[string][]string) *SynonymTable {
	t := &SynonymTable{
		byTerm: make(map[string]string, len(entries)*2),
	}

	canonicals := make([]string, 0, len(entries))
	for canonical := range entries {
		canonicals = append(canonicals, canonical)
	}
	sort.Strings(canonicals)

	for _, canonical := range canonicals {
		t.byTerm[strings.ToLower(canonical)] = canonical
		t.candidates = append(t.candidates, candidate{
			term:      strings.ToLower(canonical),
			canonical: canonical,
		})
		for _, variant := range entries[canonical] {
			t.byTerm[strings.ToLower(variant)] = canonical
			t.candidates = append(t.candidates, candidate{
				term:      strings.ToLower(variant),
				canonical: canonical,
			})
		}
	}

	return t
}

// LoadSynonyms reads a synonym table from a JSON file of the form
// {"Канонічное имя": ["вариант", ...], ...}.
func LoadSynonyms(path string) (*SynonymTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonyms file: %w", err)
	}

	var entries map[string][]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse synonyms file %s: %w", path, err)
	}

	return NewSynonymTable(entries), nil
}

// Exact returns the canonical name for an already lower-cased query when
// it equals a canonical name or any variant, case-insensitively.
func (t *SynonymTable) Exact(query string) (string, bool) {
	canonical, ok := t.byTerm[query]
	return canonical, ok
}

// Len returns the number of scoring candidates (canonicals plus variants).
func (t *SynonymTable) Len() int {
	return len(t.candidates)
}
