// Package model defines the persisted listing record shared by the workflow,
// the stores and the API.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Kind is the listing category.
type Kind string

const (
	KindSale Kind = "sale"
	KindRent Kind = "rent"
)

// ParseKind converts user input into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindSale:
		return KindSale, nil
	case KindRent:
		return KindRent, nil
	default:
		return "", eris.Errorf("model: unknown listing kind %q", s)
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindSale || k == KindRent
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat" firestore:"lat" bson:"lat" yaml:"lat"`
	Lng float64 `json:"lng" firestore:"lng" bson:"lng" yaml:"lng"`
}

// Listing is the persisted listing document. Field names match the documents
// written by the web client so both can read each other's records.
type Listing struct {
	ID              string    `json:"id,omitempty" firestore:"-" bson:"-" yaml:"id,omitempty"`
	Kind            Kind      `json:"type" firestore:"type" bson:"type" yaml:"type"`
	Name            string    `json:"name" firestore:"name" bson:"name" yaml:"name"`
	Bedrooms        int       `json:"bedrooms" firestore:"bedrooms" bson:"bedrooms" yaml:"bedrooms"`
	Bathrooms       int       `json:"bathrooms" firestore:"bathrooms" bson:"bathrooms" yaml:"bathrooms"`
	Parking         bool      `json:"parking" firestore:"parking" bson:"parking" yaml:"parking"`
	Furnished       bool      `json:"furnished" firestore:"furnished" bson:"furnished" yaml:"furnished"`
	Offer           bool      `json:"offer" firestore:"offer" bson:"offer" yaml:"offer"`
	RegularPrice    int64     `json:"regularPrice" firestore:"regularPrice" bson:"regularPrice" yaml:"regularPrice"`
	DiscountedPrice *int64    `json:"discountedPrice,omitempty" firestore:"discountedPrice,omitempty" bson:"discountedPrice,omitempty" yaml:"discountedPrice,omitempty"`
	ImageURLs       []string  `json:"imageUrls" firestore:"imageUrls" bson:"imageUrls" yaml:"imageUrls"`
	Geolocation     GeoPoint  `json:"geolocation" firestore:"geolocation" bson:"geolocation" yaml:"geolocation"`
	Location        string    `json:"location" firestore:"location" bson:"location" yaml:"location"`
	OwnerID         string    `json:"userRef" firestore:"userRef" bson:"userRef" yaml:"userRef"`
	CreatedAt       time.Time `json:"timestamp" firestore:"timestamp" bson:"timestamp" yaml:"timestamp"`
}

// Fields renders the listing as a document map without the identity and the
// timestamp, which the database assigns. The discountedPrice key is only
// present when the listing carries an offer.
func (l *Listing) Fields() map[string]any {
	urls := make([]string, len(l.ImageURLs))
	copy(urls, l.ImageURLs)

	doc := map[string]any{
		"type":         string(l.Kind),
		"name":         l.Name,
		"bedrooms":     l.Bedrooms,
		"bathrooms":    l.Bathrooms,
		"parking":      l.Parking,
		"furnished":    l.Furnished,
		"offer":        l.Offer,
		"regularPrice": l.RegularPrice,
		"imageUrls":    urls,
		"geolocation": map[string]any{
			"lat": l.Geolocation.Lat,
			"lng": l.Geolocation.Lng,
		},
		"location": l.Location,
		"userRef":  l.OwnerID,
	}
	if l.Offer && l.DiscountedPrice != nil {
		doc["discountedPrice"] = *l.DiscountedPrice
	}
	return doc
}

// DetailPath is the route of the listing's detail view.
func (l *Listing) DetailPath() string {
	return DetailPath(l.Kind, l.ID)
}

// DetailPath builds the detail route for a listing kind and id.
func DetailPath(kind Kind, id string) string {
	return fmt.Sprintf("/category/%s/%s", kind, id)
}
