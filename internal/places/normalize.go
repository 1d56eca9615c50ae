package places

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	orbjson "github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/poi-cache/internal/geojson"
)

// CellFunc maps a point to a spatial cell id; nil disables the h3_cell property.
type CellFunc func(lat, lng float64) (string, error)

type Normalizer struct {
	Cell CellFunc
}

// Normalize converts raw places into a dataset. Places without an id or a
// location cannot be placed or deduplicated and are skipped.
func (n Normalizer) Normalize(raw []Place, radius float64) *geojson.Dataset {
	out := geojson.Empty()
	for _, p := range raw {
		if strings.TrimSpace(p.ID) == "" || p.Location == nil {
			continue
		}
		f := orbjson.NewFeature(orb.Point{p.Location.Longitude, p.Location.Latitude})
		props := f.Properties
		props[geojson.IDProperty] = p.ID
		props["radius"] = radius

		if p.DisplayName != nil && p.DisplayName.Text != "" {
			props["name"] = p.DisplayName.Text
		}
		setString(props, "address", p.FormattedAddress)
		setString(props, "primary_type", p.PrimaryType)
		setString(props, "price_level", p.PriceLevel)
		setString(props, "business_status", p.BusinessStatus)
		setString(props, "website", p.WebsiteURI)
		setString(props, "phone", p.NationalPhoneNumber)
		if len(p.Types) > 0 {
			types := make([]any, 0, len(p.Types))
			for _, t := range p.Types {
				types = append(types, t)
			}
			props["types"] = types
		}
		if p.Rating != nil {
			props["rating"] = *p.Rating
		}
		if v, ok := rawScalar(p.UserRatingCount); ok {
			props["user_ratings_total"] = v
		}
		if n.Cell != nil {
			if cell, err := n.Cell(p.Location.Latitude, p.Location.Longitude); err == nil {
				props["h3_cell"] = cell
			}
		}
		out.Features = append(out.Features, f)
	}
	out.Properties = geojson.PropertyNames(out.Features)
	return out
}

func setString(props orbjson.Properties, key, v string) {
	if v != "" {
		props[key] = v
	}
}

// the API sometimes encodes counts as strings; keep them as-is for CoerceNumbers
func rawScalar(b json.RawMessage) (any, bool) {
	if len(b) == 0 || string(b) == "null" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case string, float64:
		return v, true
	default:
		return nil, false
	}
}

// identifier-like properties keep their string form even when they look numeric
var keepAsString = map[string]struct{}{
	geojson.IDProperty: {},
	"phone":            {},
	"h3_cell":          {},
	"name":             {},
	"address":          {},
}

// CoerceNumbers converts string-encoded integers and decimals in feature
// properties to numbers, in place.
func CoerceNumbers(d *geojson.Dataset) {
	if d == nil {
		return
	}
	for _, f := range d.Features {
		if f == nil {
			continue
		}
		for k, v := range f.Properties {
			if _, skip := keepAsString[k]; skip {
				continue
			}
			s, ok := v.(string)
			if !ok {
				continue
			}
			if n, ok := parseNumber(s); ok {
				f.Properties[k] = n
			}
		}
	}
}

func parseNumber(s string) (any, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil, false
	}
	if i, err := strconv.ParseInt(t, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f, true
	}
	return nil, false
}

func Normalize(raw []Place, radius float64, cell CellFunc) *geojson.Dataset {
	return Normalizer{Cell: cell}.Normalize(raw, radius)
}
