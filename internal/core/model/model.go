// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// MaxRadiusMeters is the largest circle the places API accepts.
const MaxRadiusMeters = 50000

// Request is one dataset fetch. Its cache identity is the full value.
type Request struct {
	Lat          float64           `json:"lat"`
	Lng          float64           `json:"lng"`
	Radius       float64           `json:"radius"`
	BooleanQuery string            `json:"boolean_query"`
	Filters      map[string]string `json:"filters,omitempty"`
}

func (r Request) Validate() error {
	if math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90 {
		return errors.New("latitude must be in [-90,90]")
	}
	if math.IsNaN(r.Lng) || r.Lng < -180 || r.Lng > 180 {
		return errors.New("longitude must be in [-180,180]")
	}
	if math.IsNaN(r.Radius) || r.Radius <= 0 || r.Radius > MaxRadiusMeters {
		return fmt.Errorf("radius must be in (0,%d]", MaxRadiusMeters)
	}
	if strings.TrimSpace(r.BooleanQuery) == "" {
		return errors.New("boolean_query is required")
	}
	return nil
}

// SubQuery is one independently fetchable include/exclude type filter.
type SubQuery struct {
	Included []string `json:"included"`
	Excluded []string `json:"excluded"`
}

// Normalized returns a copy with both sets sorted and de-duplicated.
func (s SubQuery) Normalized() SubQuery {
	return SubQuery{Included: sortedSet(s.Included), Excluded: sortedSet(s.Excluded)}
}

func (s SubQuery) String() string {
	n := s.Normalized()
	return "+" + strings.Join(n.Included, ",") + " -" + strings.Join(n.Excluded, ",")
}

func sortedSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
