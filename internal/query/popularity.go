package query

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
)

// Popularity maps a category to its relative weight. Treat it as read-only
// once built; it is shared across requests.
type Popularity map[string]float64

// Weight returns the category weight and whether the category is known.
func (p Popularity) Weight(category string) (float64, bool) {
	w, ok := p[category]
	return w, ok
}

// LoadPopularity reads a grouped weights file of the form
// {"group": {"category": weight, ...}, ...} and flattens it. A later group
// (by sorted name) overrides an earlier one for the same category.
func LoadPopularity(path string) (Popularity, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read popularity file: %w", err)
	}
	return ParsePopularity(b)
}

func ParsePopularity(b []byte) (Popularity, error) {
	var groups map[string]map[string]float64
	if err := json.Unmarshal(b, &groups); err != nil {
		return nil, fmt.Errorf("decode popularity: %w", err)
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	slices.Sort(names)

	out := make(Popularity)
	for _, g := range names {
		for cat, w := range groups[g] {
			out[strings.ToLower(cat)] = w
		}
	}
	return out, nil
}
