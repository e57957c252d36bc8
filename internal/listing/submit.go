package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/listings/internal/model"
	"github.com/sells-group/listings/internal/store"
	"github.com/sells-group/listings/pkg/blob"
	"github.com/sells-group/listings/pkg/geocode"
)

// undefinedMarker in a formatted address means the geocoder echoed an
// unresolved value back.
const undefinedMarker = "undefined"

// cleanupTimeout bounds compensating deletes after a failed submit.
const cleanupTimeout = 30 * time.Second

// Geocoder resolves an address. geocode.Client satisfies it.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (*geocode.Response, error)
}

// Result describes a persisted listing.
type Result struct {
	ID     string         `json:"id"`
	Kind   model.Kind     `json:"type"`
	Path   string         `json:"path"`
	Record *model.Listing `json:"record"`
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithMaxImages overrides the upper image bound (default MaxImages).
func WithMaxImages(n int) Option {
	return func(s *Submitter) {
		if n > 0 {
			s.maxImages = n
		}
	}
}

// WithUploadConcurrency caps simultaneous uploads. Zero or less uploads all
// images at once.
func WithUploadConcurrency(n int) Option {
	return func(s *Submitter) { s.concurrency = n }
}

// WithMaxImageBytes rejects larger images before upload. Zero disables it.
func WithMaxImageBytes(n int64) Option {
	return func(s *Submitter) { s.maxImageBytes = n }
}

// WithCleanup controls deletion of uploaded images when a submit fails
// after uploading.
func WithCleanup(on bool) Option {
	return func(s *Submitter) { s.cleanup = on }
}

// WithKeyPrefix sets the object key prefix (default "images").
func WithKeyPrefix(prefix string) Option {
	return func(s *Submitter) { s.keyPrefix = prefix }
}

// Submitter runs the submission workflow against its collaborators.
type Submitter struct {
	geocoder Geocoder
	blobs    blob.Storage
	store    store.Store

	maxImages     int
	concurrency   int
	maxImageBytes int64
	cleanup       bool
	keyPrefix     string
}

// NewSubmitter wires the collaborators. geocoder may be nil when address
// resolution is not configured; drafts then have to carry coordinates.
func NewSubmitter(geocoder Geocoder, blobs blob.Storage, st store.Store, opts ...Option) *Submitter {
	s := &Submitter{
		geocoder:  geocoder,
		blobs:     blobs,
		store:     st,
		maxImages: MaxImages,
		cleanup:   true,
		keyPrefix: "images",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Geocoding reports whether address resolution is available.
func (s *Submitter) Geocoding() bool {
	return s.geocoder != nil
}

// MaxImages is the configured image upper bound.
func (s *Submitter) MaxImages() int {
	return s.maxImages
}

// Submit validates d, resolves its location, uploads its images and writes
// the record. Every failure is a *SubmitError and leaves d untouched.
func (s *Submitter) Submit(ctx context.Context, d Draft) (*Result, error) {
	log := zap.L().With(
		zap.String("owner", d.OwnerID),
		zap.String("type", string(d.Kind)),
		zap.Int("images", len(d.Images)),
	)

	if d.Offer && d.DiscountedPrice >= d.RegularPrice {
		log.Warn("listing: discounted price not below regular price",
			zap.Int64("regular", d.RegularPrice),
			zap.Int64("discounted", d.DiscountedPrice),
		)
		return nil, newSubmitError(InvalidPrice, nil)
	}

	if len(d.Images) > s.maxImages {
		log.Warn("listing: too many images", zap.Int("max", s.maxImages))
		se := newSubmitError(TooManyImages, nil)
		if s.maxImages != MaxImages {
			se.Detail = fmt.Sprintf("Max %d images", s.maxImages)
		}
		return nil, se
	}

	geo, location, err := s.resolveLocation(ctx, d)
	if err != nil {
		log.Warn("listing: location not resolved", zap.Error(err))
		return nil, err
	}

	if strings.TrimSpace(d.OwnerID) == "" {
		return nil, newSubmitError(Unauthenticated, nil)
	}
	if msg := d.problem(s.maxImageBytes); msg != "" {
		log.Warn("listing: draft rejected", zap.String("problem", msg))
		return nil, &SubmitError{Kind: InvalidDraft, Detail: msg}
	}

	objs, err := s.uploadImages(ctx, d.OwnerID, d.Images, log)
	if err != nil {
		log.Error("listing: image upload failed", zap.Error(err))
		s.discard(ctx, objs, log)
		return nil, newSubmitError(ImageUploadFailed, err)
	}

	rec := assemble(d, objs, geo, location)

	id, err := s.store.CreateListing(ctx, rec)
	if err != nil {
		log.Error("listing: persist failed", zap.Error(err))
		s.discard(ctx, objs, log)
		return nil, newSubmitError(PersistFailed, err)
	}

	log.Info("listing: saved", zap.String("id", id))
	return &Result{
		ID:     id,
		Kind:   rec.Kind,
		Path:   model.DetailPath(rec.Kind, id),
		Record: rec,
	}, nil
}

// resolveLocation returns the coordinates and the location string to store.
func (s *Submitter) resolveLocation(ctx context.Context, d Draft) (model.GeoPoint, string, error) {
	if !d.Geolocation {
		return model.GeoPoint{Lat: d.Latitude, Lng: d.Longitude}, d.Address, nil
	}
	if strings.TrimSpace(d.Address) == "" {
		return model.GeoPoint{}, "", newSubmitError(InvalidAddress, geocode.ErrEmptyAddress)
	}
	if s.geocoder == nil {
		return model.GeoPoint{}, "", newSubmitError(GeocodeUnavailable, eris.New("listing: no geocoder configured"))
	}

	resp, err := s.geocoder.Lookup(ctx, d.Address)
	if err != nil {
		if errors.Is(err, geocode.ErrEmptyAddress) {
			return model.GeoPoint{}, "", newSubmitError(InvalidAddress, err)
		}
		return model.GeoPoint{}, "", newSubmitError(GeocodeUnavailable, err)
	}

	if resp.Status == geocode.StatusZeroResults {
		return model.GeoPoint{}, "", newSubmitError(InvalidAddress, eris.Errorf("listing: no match for %q", d.Address))
	}
	formatted, ok := resp.Address()
	if !ok || strings.Contains(formatted, undefinedMarker) {
		return model.GeoPoint{}, "", newSubmitError(InvalidAddress,
			eris.Errorf("listing: unusable geocoder answer (status %s)", resp.Status))
	}

	lat, lng := resp.Coordinates()
	return model.GeoPoint{Lat: lat, Lng: lng}, formatted, nil
}

// uploadImages uploads every image concurrently and returns the stored
// objects in input order. On failure the returned slice holds the objects
// that did finish, at their input index.
func (s *Submitter) uploadImages(ctx context.Context, owner string, images []Image, log *zap.Logger) ([]blob.Object, error) {
	objs := make([]blob.Object, len(images))

	g, gctx := errgroup.WithContext(ctx)
	if s.concurrency > 0 {
		g.SetLimit(s.concurrency)
	}
	for i, img := range images {
		g.Go(func() error {
			key := blob.ObjectKey(s.keyPrefix, owner, img.Name)
			progress := func(done, total int64) {
				log.Debug("listing: upload progress",
					zap.String("key", key),
					zap.Int64("bytes", done),
					zap.Int64("total", total),
				)
			}
			obj, err := s.blobs.Upload(gctx, key, img.detectContentType(), img.Data, progress)
			if err != nil {
				return eris.Wrapf(err, "listing: upload image %d (%s)", i, img.Name)
			}
			objs[i] = obj
			return nil
		})
	}
	return objs, g.Wait()
}

// discard deletes uploaded objects after a failed submit. Errors are only
// logged; the submit error stands.
func (s *Submitter) discard(ctx context.Context, objs []blob.Object, log *zap.Logger) {
	if !s.cleanup {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	for _, o := range objs {
		if o.Key == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, o.Key); err != nil {
			log.Warn("listing: orphaned image", zap.String("key", o.Key), zap.Error(err))
		}
	}
}

// assemble builds the record. The timestamp and id are left for the store.
func assemble(d Draft, objs []blob.Object, geo model.GeoPoint, location string) *model.Listing {
	urls := make([]string, len(objs))
	for i, o := range objs {
		urls[i] = o.URL
	}

	rec := &model.Listing{
		Kind:         d.Kind,
		Name:         d.Name,
		Bedrooms:     d.Bedrooms,
		Bathrooms:    d.Bathrooms,
		Parking:      d.Parking,
		Furnished:    d.Furnished,
		Offer:        d.Offer,
		RegularPrice: d.RegularPrice,
		ImageURLs:    urls,
		Geolocation:  geo,
		Location:     location,
		OwnerID:      d.OwnerID,
	}
	if d.Offer {
		p := d.DiscountedPrice
		rec.DiscountedPrice = &p
	}
	return rec
}
