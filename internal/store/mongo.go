package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sells-group/listings/internal/model"
)

// MongoStore implements Store on a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

// ConnectMongo dials uri and pings the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, eris.Wrap(err, "mongo: connect")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, eris.Wrap(err, "mongo: ping")
	}
	return client, nil
}

// NewMongo uses the listings collection of database. Close disconnects
// client.
func NewMongo(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{client: client, col: client.Database(database).Collection(Collection)}
}

func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "userRef", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	})
	return eris.Wrap(err, "mongo: create indexes")
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return eris.Wrap(s.client.Disconnect(ctx), "mongo: disconnect")
}

func (s *MongoStore) CreateListing(ctx context.Context, l *model.Listing) (string, error) {
	oid := primitive.NewObjectID()

	// One upsert writes the document and returns the server-assigned
	// $currentDate timestamp, so a returned error means nothing was stored.
	var stamped struct {
		Timestamp time.Time `bson:"timestamp"`
	}
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{
			"$setOnInsert": l.Fields(),
			"$currentDate": bson.M{"timestamp": true},
		},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After).
			SetProjection(bson.M{"timestamp": 1}),
	).Decode(&stamped)
	if err != nil {
		return "", eris.Wrap(err, "mongo: insert listing")
	}

	l.ID = oid.Hex()
	l.CreatedAt = stamped.Timestamp.UTC()
	return l.ID, nil
}

func (s *MongoStore) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var l model.Listing
	err = s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "mongo: get listing %s", id)
	}
	l.ID = id
	l.CreatedAt = l.CreatedAt.UTC()
	return &l, nil
}

func (s *MongoStore) ListListings(ctx context.Context, filter ListingFilter) ([]model.Listing, error) {
	q := mongoFilter(filter)
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(filter.limit()))

	cur, err := s.col.Find(ctx, q, opts)
	if err != nil {
		return nil, eris.Wrap(err, "mongo: list listings")
	}
	defer cur.Close(ctx) //nolint:errcheck

	var out []model.Listing
	for cur.Next(ctx) {
		var doc struct {
			ID            primitive.ObjectID `bson:"_id"`
			model.Listing `bson:",inline"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, eris.Wrap(err, "mongo: decode listing")
		}
		doc.Listing.ID = doc.ID.Hex()
		doc.Listing.CreatedAt = doc.Listing.CreatedAt.UTC()
		out = append(out, doc.Listing)
	}
	return out, eris.Wrap(cur.Err(), "mongo: iterate listings")
}

func mongoFilter(f ListingFilter) bson.M {
	q := bson.M{}
	if f.Kind != "" {
		q["type"] = string(f.Kind)
	}
	if f.OwnerID != "" {
		q["userRef"] = f.OwnerID
	}
	if f.OfferOnly {
		q["offer"] = true
	}
	return q
}
