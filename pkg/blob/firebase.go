package blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	gcs "cloud.google.com/go/storage"
	fbstorage "firebase.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// firebaseTokenKey is the object metadata key Firebase Storage reads download
// tokens from.
const firebaseTokenKey = "firebaseStorageDownloadTokens"

// FirebaseStorage stores objects in a Firebase Storage (GCS) bucket and hands
// out token-protected download URLs, the same URLs the Firebase web SDK's
// getDownloadURL returns.
type FirebaseStorage struct {
	bucket     *gcs.BucketHandle
	bucketName string
}

// NewFirebaseStorage opens bucketName through the Firebase storage client.
func NewFirebaseStorage(client *fbstorage.Client, bucketName string) (*FirebaseStorage, error) {
	if bucketName == "" {
		return nil, eris.New("blob: firebase storage bucket is required")
	}
	bh, err := client.Bucket(bucketName)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: open bucket %s", bucketName)
	}
	return &FirebaseStorage{bucket: bh, bucketName: bucketName}, nil
}

func (f *FirebaseStorage) Upload(ctx context.Context, key, contentType string, data []byte, progress ProgressFunc) (Object, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	token := uuid.NewString()
	total := int64(len(data))

	w := f.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{firebaseTokenKey: token}
	if progress != nil {
		w.ProgressFunc = func(n int64) { progress(n, total) }
	}

	if _, err := w.Write(data); err != nil {
		cancel()
		_ = w.Close()
		return Object{}, eris.Wrapf(err, "blob: firebase write %s", key)
	}
	if err := w.Close(); err != nil {
		return Object{}, eris.Wrapf(err, "blob: firebase finalize %s", key)
	}
	return Object{Key: key, URL: firebaseDownloadURL(f.bucketName, key, token)}, nil
}

func (f *FirebaseStorage) Delete(ctx context.Context, key string) error {
	err := f.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return eris.Wrapf(err, "blob: firebase delete %s", key)
	}
	return nil
}

func firebaseDownloadURL(bucket, key, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(key), url.QueryEscape(token))
}
