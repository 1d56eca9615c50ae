package places

import (
	"encoding/json"
)

// Place is one raw record from the nearby-search API. Known fields are typed;
// anything else is kept verbatim in Extra.
type Place struct {
	ID                  string          `json:"id"`
	DisplayName         *LocalizedText  `json:"displayName,omitempty"`
	FormattedAddress    string          `json:"formattedAddress,omitempty"`
	Location            *LatLng         `json:"location,omitempty"`
	Types               []string        `json:"types,omitempty"`
	PrimaryType         string          `json:"primaryType,omitempty"`
	Rating              *float64        `json:"rating,omitempty"`
	UserRatingCount     json.RawMessage `json:"userRatingCount,omitempty"`
	PriceLevel          string          `json:"priceLevel,omitempty"`
	BusinessStatus      string          `json:"businessStatus,omitempty"`
	WebsiteURI          string          `json:"websiteUri,omitempty"`
	NationalPhoneNumber string          `json:"nationalPhoneNumber,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type LocalizedText struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

var knownFields = map[string]struct{}{
	"id": {}, "displayName": {}, "formattedAddress": {}, "location": {}, "types": {},
	"primaryType": {}, "rating": {}, "userRatingCount": {}, "priceLevel": {},
	"businessStatus": {}, "websiteUri": {}, "nationalPhoneNumber": {},
}

func (p *Place) UnmarshalJSON(b []byte) error {
	type plain Place
	var base plain
	if err := json.Unmarshal(b, &base); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for k := range knownFields {
		delete(all, k)
	}
	*p = Place(base)
	if len(all) > 0 {
		p.Extra = all
	}
	return nil
}

type nearbyRequest struct {
	IncludedTypes       []string            `json:"includedTypes,omitempty"`
	ExcludedTypes       []string            `json:"excludedTypes,omitempty"`
	LocationRestriction locationRestriction `json:"locationRestriction"`
}

type locationRestriction struct {
	Circle circle `json:"circle"`
}

type circle struct {
	Center LatLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type nearbyResponse struct {
	Places []Place `json:"places"`
}
