// Package geojson holds the canonical dataset shape (a FeatureCollection plus
// the set of property names seen across its features) and the merge rules.
package geojson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	orbjson "github.com/paulmach/orb/geojson"
)

const (
	TypeFeatureCollection = "FeatureCollection"

	// IDProperty is the internal dedup id; it is stripped before a dataset
	// leaves the service.
	IDProperty = "id"
)

type Dataset struct {
	Type       string             `json:"type"`
	Features   []*orbjson.Feature `json:"features"`
	Properties []string           `json:"properties"`
}

func Empty() *Dataset {
	return &Dataset{
		Type:       TypeFeatureCollection,
		Features:   []*orbjson.Feature{},
		Properties: []string{},
	}
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Features)
}

func (d *Dataset) IsEmpty() bool { return d.Len() == 0 }

// Clone copies the dataset and each feature's properties map. Geometries are
// shared; orb geometries are treated as immutable here.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		Type:       d.Type,
		Features:   make([]*orbjson.Feature, 0, len(d.Features)),
		Properties: slices.Clone(d.Properties),
	}
	for _, f := range d.Features {
		out.Features = append(out.Features, cloneFeature(f))
	}
	if out.Properties == nil {
		out.Properties = []string{}
	}
	return out
}

func cloneFeature(f *orbjson.Feature) *orbjson.Feature {
	if f == nil {
		return nil
	}
	cp := *f
	if f.Properties != nil {
		cp.Properties = make(orbjson.Properties, len(f.Properties))
		for k, v := range f.Properties {
			cp.Properties[k] = v
		}
	}
	return &cp
}

// PropertyNames returns the sorted set of property keys used by the features.
func PropertyNames(features []*orbjson.Feature) []string {
	seen := map[string]struct{}{}
	for _, f := range features {
		if f == nil {
			continue
		}
		for k := range f.Properties {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// StripIDs removes the internal id from every feature in place.
func StripIDs(d *Dataset) {
	if d == nil {
		return
	}
	for _, f := range d.Features {
		if f != nil && f.Properties != nil {
			delete(f.Properties, IDProperty)
		}
	}
}

// FeatureID returns the canonical dedup key of f. String and numeric ids
// live in separate namespaces so "1" and 1 never collapse.
func FeatureID(f *orbjson.Feature) (string, bool) {
	if f == nil || f.Properties == nil {
		return "", false
	}
	raw, ok := f.Properties[IDProperty]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", false
		}
		return "s:" + v, true
	case float64:
		return "n:" + strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return "n:" + strconv.Itoa(v), true
	case int64:
		return "n:" + strconv.FormatInt(v, 10), true
	case json.Number:
		return "n:" + v.String(), true
	default:
		return "", false
	}
}

// Encode serializes d; nil slices are written as empty arrays.
func Encode(d *Dataset) ([]byte, error) {
	if d == nil {
		d = Empty()
	}
	out := *d
	if out.Type == "" {
		out.Type = TypeFeatureCollection
	}
	if out.Features == nil {
		out.Features = []*orbjson.Feature{}
	}
	if out.Properties == nil {
		out.Properties = []string{}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal dataset: %w", err)
	}
	return b, nil
}

// Decode parses a stored dataset and checks it is a FeatureCollection.
func Decode(b []byte) (*Dataset, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, fmt.Errorf("decode dataset: empty payload")
	}
	var d Dataset
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if d.Type != TypeFeatureCollection {
		return nil, fmt.Errorf("decode dataset: type is %q (want %q)", d.Type, TypeFeatureCollection)
	}
	if d.Features == nil {
		d.Features = []*orbjson.Feature{}
	}
	if d.Properties == nil {
		d.Properties = []string{}
	}
	return &d, nil
}
