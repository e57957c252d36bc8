package blob

import (
	"context"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStorage stores objects in a MongoDB GridFS bucket. GridFS has no HTTP
// frontend, so URLs point at this application's image route and the API
// streams the bytes back through Stream.
type GridFSStorage struct {
	bucket    *gridfs.Bucket
	publicURL string
}

// NewGridFSStorage opens the named GridFS bucket in db.
func NewGridFSStorage(db *mongo.Database, bucketName, publicBaseURL string) (*GridFSStorage, error) {
	if bucketName == "" {
		bucketName = "images"
	}
	b, err := gridfs.NewBucket(db, options.GridFSBucket().SetName(bucketName))
	if err != nil {
		return nil, eris.Wrap(err, "blob: gridfs bucket")
	}
	return &GridFSStorage{bucket: b, publicURL: publicBaseURL}, nil
}

func (g *GridFSStorage) Upload(ctx context.Context, key, contentType string, data []byte, progress ProgressFunc) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, eris.Wrapf(err, "blob: gridfs upload %s", key)
	}

	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	if _, err := g.bucket.UploadFromStream(key, newProgressReader(data, progress), opts); err != nil {
		return Object{}, eris.Wrapf(err, "blob: gridfs upload %s", key)
	}
	return Object{Key: key, URL: joinURL(g.publicURL, key)}, nil
}

func (g *GridFSStorage) Delete(ctx context.Context, key string) error {
	cur, err := g.bucket.Find(bson.M{"filename": key})
	if err != nil {
		return eris.Wrapf(err, "blob: gridfs find %s", key)
	}
	defer cur.Close(ctx) //nolint:errcheck

	for cur.Next(ctx) {
		var file struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&file); err != nil {
			return eris.Wrapf(err, "blob: gridfs decode %s", key)
		}
		if err := g.bucket.Delete(file.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return eris.Wrapf(err, "blob: gridfs delete %s", key)
		}
	}
	return eris.Wrap(cur.Err(), "blob: gridfs cursor")
}

func (g *GridFSStorage) Stream(ctx context.Context, key string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := g.bucket.DownloadToStreamByName(key, w)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return n, eris.Wrapf(err, "blob: gridfs download %s", key)
	}
	return n, nil
}
