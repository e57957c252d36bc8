// Package store persists listing records. Every backend assigns the record
// identity and the creation timestamp at write time.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings/internal/model"
)

// Collection is the name of the listing collection/table in every backend.
const Collection = "listings"

// ErrNotFound is returned when a listing does not exist.
var ErrNotFound = eris.New("store: listing not found")

// ListingFilter specifies criteria for browsing listings.
type ListingFilter struct {
	Kind      model.Kind `json:"type,omitempty"`
	OwnerID   string     `json:"userRef,omitempty"`
	OfferOnly bool       `json:"offer,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// DefaultListLimit caps ListListings when the filter does not.
const DefaultListLimit = 50

func (f ListingFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Store defines the document database used by the submission workflow.
type Store interface {
	// CreateListing writes l as a new record. On success l.ID and
	// l.CreatedAt hold the values assigned by the backend and the id is
	// returned.
	CreateListing(ctx context.Context, l *model.Listing) (string, error)
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	// ListListings returns matching listings, newest first.
	ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error)

	Migrate(ctx context.Context) error
	Close() error
}
