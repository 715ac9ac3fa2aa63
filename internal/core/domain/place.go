package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// PlaceSource identifies which data source a place came from.
type PlaceSource string

const (
	SourceLocal     PlaceSource = "local"     // curated tourism dataset
	SourceBusiness  PlaceSource = "business"  // approved business listing
	SourceNominatim PlaceSource = "nominatim" // structured community geocoder
	SourcePhoton    PlaceSource = "photon"    // free-form community geocoder
	SourceOverpass  PlaceSource = "overpass"  // live OSM POI query
	SourceManual    PlaceSource = "manual"    // user-entered coordinate
)

// Place is the canonical, provider-agnostic representation of a named
// point location. Adapters normalize every provider schema into this
// shape; nothing downstream knows a provider's native fields.
type Place struct {
	ID        string            `json:"id,omitempty"`
	Name      string            `json:"name"`
	Location  GeoPoint          `json:"location"`
	Source    PlaceSource       `json:"source"`
	Subtitle  string            `json:"subtitle,omitempty"`
	Category  string            `json:"category,omitempty"`
	Region    string            `json:"region,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Distance  *float64          `json:"distance,omitempty"` // computed field, meters from query anchor
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// Valid reports whether the place carries usable coordinates. Places
// that fail this check are discarded at the adapter boundary.
func (p Place) Valid() bool {
	return p.Name != "" && p.Location.Valid()
}

// DedupKey derives the identity used to recognize two records as the
// same place: lowercased name plus coordinates rounded to 6 decimal
// places. When coordinates are not finite the key degrades to the name
// alone, so identically-named places with missing coordinates collapse
// into one entry.
func (p Place) DedupKey() string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	lat, lon := p.Location.Lat, p.Location.Lon
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return name + "|unknown"
	}
	return fmt.Sprintf("%s|%.6f|%.6f", name, lat, lon)
}

// NearbyQuery asks for places around an anchor point.
type NearbyQuery struct {
	Anchor       GeoPoint `json:"anchor"`
	RadiusMeters float64  `json:"radius_meters"`
	Category     string   `json:"category,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}
