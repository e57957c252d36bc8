// Package listing implements listing submission: the editable draft, the
// form that owns it, and the workflow that validates, geocodes, uploads
// images and persists the record.
package listing

import (
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/listings/internal/model"
)

// Draft bounds.
const (
	NameMinLen  = 10
	NameMaxLen  = 32
	RoomsMin    = 1
	RoomsMax    = 50
	PriceMin    = 50
	PriceMax    = 750_000_000
	MinImages   = 1
	MaxImages   = 6
	coordMaxLat = 90
	coordMaxLng = 180
)

// Image is a raw image selected for upload.
type Image struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}

// Size is the payload length in bytes.
func (i Image) Size() int { return len(i.Data) }

// detectContentType prefers the declared type and sniffs otherwise.
func (i Image) detectContentType() string {
	if ct := strings.TrimSpace(i.ContentType); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	return http.DetectContentType(i.Data)
}

// Draft is the in-progress listing held by a form.
type Draft struct {
	Kind            model.Kind `json:"type"`
	Name            string     `json:"name"`
	Bedrooms        int        `json:"bedrooms"`
	Bathrooms       int        `json:"bathrooms"`
	Parking         bool       `json:"parking"`
	Furnished       bool       `json:"furnished"`
	Offer           bool       `json:"offer"`
	Address         string     `json:"address"`
	Latitude        float64    `json:"latitude"`
	Longitude       float64    `json:"longitude"`
	RegularPrice    int64      `json:"regularPrice"`
	DiscountedPrice int64      `json:"discountedPrice"`
	Images          []Image    `json:"images"`

	// Geolocation selects address resolution through the geocoder. When
	// false, Latitude and Longitude are used as entered.
	Geolocation bool `json:"geolocationEnabled"`

	OwnerID string `json:"userRef"`
}

// NewDraft returns the values a freshly mounted form starts with.
func NewDraft(geolocation bool) Draft {
	return Draft{
		Kind:        model.KindRent,
		Bedrooms:    1,
		Bathrooms:   1,
		Geolocation: geolocation,
	}
}

// Clone returns a copy that shares no slices with d. Image bytes are shared:
// they are never written after being set.
func (d Draft) Clone() Draft {
	c := d
	if d.Images != nil {
		c.Images = make([]Image, len(d.Images))
		copy(c.Images, d.Images)
	}
	return c
}

// problem returns a user-facing description of the first out-of-range
// field, or "" when the draft is complete. Offer pricing and the image upper
// bound are checked earlier by the workflow.
func (d Draft) problem(maxImageBytes int64) string {
	if !d.Kind.Valid() {
		return "Type must be sale or rent"
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(d.Name)); n < NameMinLen || n > NameMaxLen {
		return fmt.Sprintf("Name must be %d to %d characters", NameMinLen, NameMaxLen)
	}
	if d.Bedrooms < RoomsMin || d.Bedrooms > RoomsMax {
		return fmt.Sprintf("Bedrooms must be between %d and %d", RoomsMin, RoomsMax)
	}
	if d.Bathrooms < RoomsMin || d.Bathrooms > RoomsMax {
		return fmt.Sprintf("Bathrooms must be between %d and %d", RoomsMin, RoomsMax)
	}
	if d.RegularPrice < PriceMin || d.RegularPrice > PriceMax {
		return fmt.Sprintf("Regular price must be between %d and %d", PriceMin, PriceMax)
	}
	if d.Offer && (d.DiscountedPrice < PriceMin || d.DiscountedPrice > PriceMax) {
		return fmt.Sprintf("Discounted price must be between %d and %d", PriceMin, PriceMax)
	}
	if !d.Geolocation {
		// Written as a range test so NaN fails it.
		if !(d.Latitude >= -coordMaxLat && d.Latitude <= coordMaxLat) {
			return fmt.Sprintf("Latitude must be between -%d and %d", coordMaxLat, coordMaxLat)
		}
		if !(d.Longitude >= -coordMaxLng && d.Longitude <= coordMaxLng) {
			return fmt.Sprintf("Longitude must be between -%d and %d", coordMaxLng, coordMaxLng)
		}
	}
	if len(d.Images) < MinImages {
		return fmt.Sprintf("Add at least %d image", MinImages)
	}
	for _, img := range d.Images {
		if img.Size() == 0 {
			return fmt.Sprintf("Image %s is empty", img.Name)
		}
		if maxImageBytes > 0 && int64(img.Size()) > maxImageBytes {
			return fmt.Sprintf("Image %s is larger than %d MB", img.Name, maxImageBytes>>20)
		}
		if ct := img.detectContentType(); ct != "image/jpeg" && ct != "image/png" {
			return fmt.Sprintf("Image %s must be a JPG or PNG", img.Name)
		}
	}
	return ""
}
