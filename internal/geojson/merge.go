package geojson

import (
	"slices"

	orbjson "github.com/paulmach/orb/geojson"
)

// Diagnostics reports what Merge dropped.
type Diagnostics struct {
	TotalIn   int
	TotalOut  int
	DedupByID int
	MissingID int
}

// Merge combines datasets into one. The first dataset to introduce an id wins,
// features without an id are dropped, output order is first-seen order and the
// property set is the union of the inputs' sets. Inputs are not modified.
func Merge(parts []*Dataset) *Dataset {
	out, _ := MergeWithDiagnostics(parts)
	return out
}

func MergeWithDiagnostics(parts []*Dataset) (*Dataset, Diagnostics) {
	var diag Diagnostics
	out := Empty()

	props := map[string]struct{}{}
	seen := map[string]struct{}{}

	for _, p := range parts {
		if p == nil {
			continue
		}
		for _, name := range p.Properties {
			props[name] = struct{}{}
		}
		for _, f := range p.Features {
			diag.TotalIn++
			id, ok := FeatureID(f)
			if !ok {
				diag.MissingID++
				continue
			}
			if _, dup := seen[id]; dup {
				diag.DedupByID++
				continue
			}
			seen[id] = struct{}{}
			out.Features = append(out.Features, cloneFeature(f))
		}
	}

	out.Properties = make([]string, 0, len(props))
	for name := range props {
		out.Properties = append(out.Properties, name)
	}
	slices.Sort(out.Properties)
	diag.TotalOut = len(out.Features)
	return out, diag
}

// FeatureIDs lists canonical ids in feature order; features without one are skipped.
func FeatureIDs(features []*orbjson.Feature) []string {
	out := make([]string, 0, len(features))
	for _, f := range features {
		if id, ok := FeatureID(f); ok {
			out = append(out, id)
		}
	}
	return out
}
