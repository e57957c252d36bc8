package store

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/rotisserie/eris"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sells-group/listings/internal/model"
)

// FirestoreStore implements Store on a Cloud Firestore collection, the
// database the web client writes to.
type FirestoreStore struct {
	client *firestore.Client
	col    *firestore.CollectionRef
}

// NewFirestore wraps an open Firestore client.
func NewFirestore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, col: client.Collection(Collection)}
}

// Migrate is a no-op; Firestore collections are created on first write.
func (s *FirestoreStore) Migrate(context.Context) error { return nil }

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) CreateListing(ctx context.Context, l *model.Listing) (string, error) {
	doc := l.Fields()
	doc["timestamp"] = firestore.ServerTimestamp

	ref, wr, err := s.col.Add(ctx, doc)
	if err != nil {
		return "", eris.Wrap(err, "firestore: add listing")
	}

	// Server timestamps resolve to the commit time of the write.
	l.ID = ref.ID
	l.CreatedAt = wr.UpdateTime.UTC()
	return ref.ID, nil
}

func (s *FirestoreStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	snap, err := s.col.Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "firestore: get listing %s", id)
	}
	return decodeSnapshot(snap)
}

func (s *FirestoreStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	q := s.col.Query
	if filter.Kind != "" {
		q = q.Where("type", "==", string(filter.Kind))
	}
	if filter.OwnerID != "" {
		q = q.Where("userRef", "==", filter.OwnerID)
	}
	if filter.OfferOnly {
		q = q.Where("offer", "==", true)
	}
	q = q.OrderBy("timestamp", firestore.Desc).Limit(filter.limit())

	it := q.Documents(ctx)
	defer it.Stop()

	var out []model.Listing
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "firestore: list listings")
		}
		l, err := decodeSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, nil
}

func decodeSnapshot(snap *firestore.DocumentSnapshot) (*model.Listing, error) {
	var l model.Listing
	if err := snap.DataTo(&l); err != nil {
		return nil, eris.Wrapf(err, "firestore: decode listing %s", snap.Ref.ID)
	}
	l.ID = snap.Ref.ID
	return &l, nil
}
