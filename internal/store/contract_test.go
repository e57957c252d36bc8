package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listings/internal/model"
)

func int64Ptr(v int64) *int64 { return &v }

func sampleListing(kind model.Kind, owner string, offer bool) *model.Listing {
	l := &model.Listing{
		Kind:         kind,
		Name:         "Cozy Loft Flat",
		Bedrooms:     2,
		Bathrooms:    1,
		Parking:      true,
		Offer:        offer,
		RegularPrice: 1500,
		ImageURLs:    []string{"https://img.test/a.jpg", "https://img.test/b.jpg"},
		Geolocation:  model.GeoPoint{Lat: 37.33, Lng: -122.03},
		Location:     "1 Infinite Loop, Cupertino, CA",
		OwnerID:      owner,
	}
	if offer {
		l.DiscountedPrice = int64Ptr(1200)
	}
	return l
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("create assigns id and timestamp", func(t *testing.T) {
		before := time.Now().Add(-time.Minute)
		l := sampleListing(model.KindRent, "owner-a", false)

		id, err := s.CreateListing(ctx, l)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, l.ID)
		assert.True(t, l.CreatedAt.After(before), "created_at %v", l.CreatedAt)

		got, err := s.GetListing(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, model.KindRent, got.Kind)
		assert.Equal(t, "Cozy Loft Flat", got.Name)
		assert.Equal(t, []string{"https://img.test/a.jpg", "https://img.test/b.jpg"}, got.ImageURLs)
		assert.Equal(t, model.GeoPoint{Lat: 37.33, Lng: -122.03}, got.Geolocation)
		assert.Equal(t, "owner-a", got.OwnerID)
		assert.Nil(t, got.DiscountedPrice)
		assert.WithinDuration(t, l.CreatedAt, got.CreatedAt, time.Second)
	})

	t.Run("offer keeps discounted price", func(t *testing.T) {
		l := sampleListing(model.KindSale, "owner-b", true)
		id, err := s.CreateListing(ctx, l)
		require.NoError(t, err)

		got, err := s.GetListing(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.DiscountedPrice)
		assert.Equal(t, int64(1200), *got.DiscountedPrice)
	})

	t.Run("missing listing", func(t *testing.T) {
		_, err := s.GetListing(ctx, "does-not-exist")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list filters", func(t *testing.T) {
		owner := "owner-list-" + time.Now().Format("150405.000000")
		for _, l := range []*model.Listing{
			sampleListing(model.KindRent, owner, false),
			sampleListing(model.KindSale, owner, true),
			sampleListing(model.KindSale, owner, false),
		} {
			_, err := s.CreateListing(ctx, l)
			require.NoError(t, err)
		}

		all, err := s.ListListings(ctx, ListingFilter{OwnerID: owner})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		sales, err := s.ListListings(ctx, ListingFilter{OwnerID: owner, Kind: model.KindSale})
		require.NoError(t, err)
		assert.Len(t, sales, 2)
		for _, l := range sales {
			assert.Equal(t, model.KindSale, l.Kind)
		}

		offers, err := s.ListListings(ctx, ListingFilter{OwnerID: owner, OfferOnly: true})
		require.NoError(t, err)
		require.Len(t, offers, 1)
		assert.True(t, offers[0].Offer)

		limited, err := s.ListListings(ctx, ListingFilter{OwnerID: owner, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
		assert.False(t, limited[0].CreatedAt.Before(limited[1].CreatedAt))
	})
}
