package listing

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings/internal/model"
)

// Field identifies a draft field in form input.
type Field string

const (
	FieldKind            Field = "type"
	FieldName            Field = "name"
	FieldBedrooms        Field = "bedrooms"
	FieldBathrooms       Field = "bathrooms"
	FieldParking         Field = "parking"
	FieldFurnished       Field = "furnished"
	FieldOffer           Field = "offer"
	FieldAddress         Field = "address"
	FieldLatitude        Field = "latitude"
	FieldLongitude       Field = "longitude"
	FieldRegularPrice    Field = "regularPrice"
	FieldDiscountedPrice Field = "discountedPrice"
	FieldImages          Field = "images"
	FieldGeolocation     Field = "geolocationEnabled"
)

// TextFields are the fields ParseEdit accepts, in form order.
var TextFields = []Field{
	FieldKind, FieldName, FieldBedrooms, FieldBathrooms, FieldParking,
	FieldFurnished, FieldAddress, FieldGeolocation, FieldLatitude,
	FieldLongitude, FieldOffer, FieldRegularPrice, FieldDiscountedPrice,
}

// Edit is one user change to a draft. Each variant replaces exactly one
// field.
type Edit interface {
	Field() Field
	apply(d *Draft)
}

type (
	SetKind            struct{ Kind model.Kind }
	SetName            struct{ Name string }
	SetBedrooms        struct{ N int }
	SetBathrooms       struct{ N int }
	SetParking         struct{ On bool }
	SetFurnished       struct{ On bool }
	SetOffer           struct{ On bool }
	SetAddress         struct{ Address string }
	SetLatitude        struct{ Value float64 }
	SetLongitude       struct{ Value float64 }
	SetRegularPrice    struct{ Price int64 }
	SetDiscountedPrice struct{ Price int64 }

	// SetImages replaces the whole image list.
	SetImages struct{ Images []Image }

	// SetGeolocation switches between address resolution and entered
	// coordinates.
	SetGeolocation struct{ On bool }
)

func (SetKind) Field() Field            { return FieldKind }
func (SetName) Field() Field            { return FieldName }
func (SetBedrooms) Field() Field        { return FieldBedrooms }
func (SetBathrooms) Field() Field       { return FieldBathrooms }
func (SetParking) Field() Field         { return FieldParking }
func (SetFurnished) Field() Field       { return FieldFurnished }
func (SetOffer) Field() Field           { return FieldOffer }
func (SetAddress) Field() Field         { return FieldAddress }
func (SetLatitude) Field() Field        { return FieldLatitude }
func (SetLongitude) Field() Field       { return FieldLongitude }
func (SetRegularPrice) Field() Field    { return FieldRegularPrice }
func (SetDiscountedPrice) Field() Field { return FieldDiscountedPrice }
func (SetImages) Field() Field          { return FieldImages }
func (SetGeolocation) Field() Field     { return FieldGeolocation }

func (e SetKind) apply(d *Draft)            { d.Kind = e.Kind }
func (e SetName) apply(d *Draft)            { d.Name = strings.TrimSpace(e.Name) }
func (e SetBedrooms) apply(d *Draft)        { d.Bedrooms = e.N }
func (e SetBathrooms) apply(d *Draft)       { d.Bathrooms = e.N }
func (e SetParking) apply(d *Draft)         { d.Parking = e.On }
func (e SetFurnished) apply(d *Draft)       { d.Furnished = e.On }
func (e SetOffer) apply(d *Draft)           { d.Offer = e.On }
func (e SetAddress) apply(d *Draft)         { d.Address = e.Address }
func (e SetLatitude) apply(d *Draft)        { d.Latitude = e.Value }
func (e SetLongitude) apply(d *Draft)       { d.Longitude = e.Value }
func (e SetRegularPrice) apply(d *Draft)    { d.RegularPrice = e.Price }
func (e SetDiscountedPrice) apply(d *Draft) { d.DiscountedPrice = e.Price }
func (e SetGeolocation) apply(d *Draft)     { d.Geolocation = e.On }

func (e SetImages) apply(d *Draft) {
	imgs := make([]Image, len(e.Images))
	copy(imgs, e.Images)
	d.Images = imgs
}

// ParseEdit coerces raw form text into the edit for field. Boolean fields
// take "true" or "false"; numeric fields take decimal text. Images cannot be
// expressed as text and must be set with SetImages.
func ParseEdit(field, raw string) (Edit, error) {
	f := Field(field)
	switch f {
	case FieldKind:
		k, err := model.ParseKind(raw)
		if err != nil {
			return nil, eris.Wrap(err, "listing: parse edit")
		}
		return SetKind{Kind: k}, nil
	case FieldName:
		return SetName{Name: raw}, nil
	case FieldAddress:
		return SetAddress{Address: raw}, nil
	case FieldBedrooms, FieldBathrooms:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, eris.Wrapf(err, "listing: %s must be a whole number", f)
		}
		if f == FieldBedrooms {
			return SetBedrooms{N: n}, nil
		}
		return SetBathrooms{N: n}, nil
	case FieldRegularPrice, FieldDiscountedPrice:
		p, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "listing: %s must be a whole number", f)
		}
		if f == FieldRegularPrice {
			return SetRegularPrice{Price: p}, nil
		}
		return SetDiscountedPrice{Price: p}, nil
	case FieldLatitude, FieldLongitude:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "listing: %s must be a number", f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, eris.Errorf("listing: %s must be a finite number", f)
		}
		if f == FieldLatitude {
			return SetLatitude{Value: v}, nil
		}
		return SetLongitude{Value: v}, nil
	case FieldParking, FieldFurnished, FieldOffer, FieldGeolocation:
		on, err := parseBool(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "listing: %s", f)
		}
		switch f {
		case FieldParking:
			return SetParking{On: on}, nil
		case FieldFurnished:
			return SetFurnished{On: on}, nil
		case FieldOffer:
			return SetOffer{On: on}, nil
		default:
			return SetGeolocation{On: on}, nil
		}
	case FieldImages:
		return nil, eris.New("listing: images are set from a file list, not text")
	default:
		return nil, eris.Errorf("listing: unknown field %q", field)
	}
}

// parseBool accepts only the literal strings the form submits.
func parseBool(raw string) (bool, error) {
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, eris.Errorf("expected \"true\" or \"false\", got %q", raw)
	}
}
