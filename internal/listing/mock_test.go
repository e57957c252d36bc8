package listing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/listings/internal/model"
	"github.com/sells-group/listings/internal/store"
	"github.com/sells-group/listings/pkg/blob"
	"github.com/sells-group/listings/pkg/geocode"
)

// --- Geocoder ---

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Lookup(ctx context.Context, address string) (*geocode.Response, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Response), args.Error(1)
}

// --- Blob storage ---

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Upload(ctx context.Context, key, contentType string, data []byte, progress blob.ProgressFunc) (blob.Object, error) {
	args := m.Called(ctx, key, contentType, data, progress)
	return args.Get(0).(blob.Object), args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// fakeStorage uploads in memory. Each upload waits delay(name) first, which
// lets tests reorder completions. fail names an image whose upload errors.
type fakeStorage struct {
	delay func(name string) time.Duration
	fail  string

	mu      sync.Mutex
	objects map[string][]byte
	deleted []string

	active    atomic.Int32
	maxActive atomic.Int32
	progress  atomic.Int32
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Upload(ctx context.Context, key, _ string, data []byte, progress blob.ProgressFunc) (blob.Object, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	name := imageNameFromKey(key)
	if f.delay != nil {
		select {
		case <-time.After(f.delay(name)):
		case <-ctx.Done():
			return blob.Object{}, ctx.Err()
		}
	}
	if f.fail != "" && name == f.fail {
		return blob.Object{}, context.DeadlineExceeded
	}
	if progress != nil {
		progress(int64(len(data)), int64(len(data)))
		f.progress.Add(1)
	}

	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return blob.Object{Key: key, URL: "https://blobs.test/" + key}, nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// imageNameFromKey extracts the file name from "images/{owner}-{name}-{uuid}"
// for owners without dashes.
func imageNameFromKey(key string) string {
	const uuidLen = 36
	base := key
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			base = key[i+1:]
			break
		}
	}
	start := 0
	for i := 0; i < len(base); i++ {
		if base[i] == '-' {
			start = i + 1
			break
		}
	}
	end := len(base) - uuidLen - 1
	if end < start {
		return ""
	}
	return base[start:end]
}

// --- Store ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateListing(ctx context.Context, l *model.Listing) (string, error) {
	args := m.Called(ctx, l)
	return args.String(0), args.Error(1)
}

func (m *mockStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Listing), args.Error(1)
}

func (m *mockStore) ListListings(ctx context.Context, filter store.ListingFilter) ([]model.Listing, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Listing), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// memStore records created listings and assigns sequential ids.
type memStore struct {
	mu      sync.Mutex
	records []*model.Listing
	err     error
}

func (s *memStore) CreateListing(_ context.Context, l *model.Listing) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.records = append(s.records, l)
	l.ID = fmt.Sprintf("listing-%d", len(s.records))
	l.CreatedAt = time.Now().UTC()
	return l.ID, nil
}

func (s *memStore) GetListing(context.Context, string) (*model.Listing, error) {
	return nil, store.ErrNotFound
}

func (s *memStore) ListListings(context.Context, store.ListingFilter) ([]model.Listing, error) {
	return nil, nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// --- Helpers ---

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func pngImage(name string) Image {
	return Image{Name: name, Data: append([]byte(nil), pngHeader...)}
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func okResponse(formatted string, lat, lng float64) *geocode.Response {
	return &geocode.Response{
		Status: geocode.StatusOK,
		Results: []geocode.Result{{
			Geometry:         &geocode.Geometry{Location: &geocode.Location{Lat: floatPtr(lat), Lng: floatPtr(lng)}},
			FormattedAddress: strPtr(formatted),
		}},
	}
}

// validDraft passes every check with geocoding disabled.
func validDraft() Draft {
	d := NewDraft(false)
	d.Name = "Cozy Loft Flat"
	d.Bedrooms = 2
	d.RegularPrice = 1500
	d.Address = "1 Infinite Loop"
	d.Latitude = 37.33
	d.Longitude = -122.03
	d.Images = []Image{pngImage("a.png")}
	d.OwnerID = "owner1"
	return d
}
