package places

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/poi-cache/internal/geojson"
)

func ptr[T any](v T) *T { return &v }

func TestNormalize_PropertiesAndGeometry(t *testing.T) {
	raw := []Place{
		{
			ID:                  "p1",
			DisplayName:         &LocalizedText{Text: "Blue Door"},
			FormattedAddress:    "Main St 1",
			Location:            &LatLng{Latitude: 59.33, Longitude: 18.06},
			Types:               []string{"restaurant", "food"},
			PrimaryType:         "restaurant",
			Rating:              ptr(4.5),
			UserRatingCount:     json.RawMessage(`"120"`),
			NationalPhoneNumber: "0812345",
		},
		{ID: "", Location: &LatLng{Latitude: 1, Longitude: 1}},
		{ID: "nolocation"},
	}
	cell := func(lat, lng float64) (string, error) { return "cell-x", nil }

	d := Normalize(raw, 750, cell)
	if d.Len() != 1 {
		t.Fatalf("want 1 feature, got %d", d.Len())
	}
	f := d.Features[0]
	pt, ok := f.Geometry.(orb.Point)
	if !ok || pt.Lon() != 18.06 || pt.Lat() != 59.33 {
		t.Fatalf("geometry: %#v", f.Geometry)
	}
	want := map[string]any{
		"id":                 "p1",
		"name":               "Blue Door",
		"address":            "Main St 1",
		"primary_type":       "restaurant",
		"rating":             4.5,
		"user_ratings_total": "120",
		"phone":              "0812345",
		"radius":             750.0,
		"h3_cell":            "cell-x",
	}
	for k, v := range want {
		if f.Properties[k] != v {
			t.Fatalf("prop %s: got %#v want %#v", k, f.Properties[k], v)
		}
	}
	if _, ok := f.Properties["website"]; ok {
		t.Fatalf("unset optional field must be omitted")
	}
	if len(d.Properties) != len(f.Properties) {
		t.Fatalf("property names %v do not match feature props", d.Properties)
	}
}

func TestNormalize_NoCellFunc(t *testing.T) {
	d := Normalize([]Place{{ID: "a", Location: &LatLng{Latitude: 1, Longitude: 2}}}, 10, nil)
	if _, ok := d.Features[0].Properties["h3_cell"]; ok {
		t.Fatalf("h3_cell must be absent without a cell func")
	}
}

func TestCoerceNumbers(t *testing.T) {
	d := Normalize([]Place{{
		ID:                  "123",
		Location:            &LatLng{Latitude: 1, Longitude: 2},
		UserRatingCount:     json.RawMessage(`"120"`),
		NationalPhoneNumber: "0700",
		PriceLevel:          "PRICE_LEVEL_MODERATE",
	}}, 10, nil)
	d.Features[0].Properties["score"] = "3.25"

	CoerceNumbers(d)
	props := d.Features[0].Properties
	if props["user_ratings_total"] != int64(120) {
		t.Fatalf("user_ratings_total: %#v", props["user_ratings_total"])
	}
	if props["score"] != 3.25 {
		t.Fatalf("score: %#v", props["score"])
	}
	if props["id"] != "123" || props["phone"] != "0700" {
		t.Fatalf("identifier-like props must stay strings: id=%#v phone=%#v", props["id"], props["phone"])
	}
	if props["price_level"] != "PRICE_LEVEL_MODERATE" {
		t.Fatalf("non-numeric string changed: %#v", props["price_level"])
	}
	CoerceNumbers(nil)
	CoerceNumbers(geojson.Empty())
}
