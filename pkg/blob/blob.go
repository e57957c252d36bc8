// Package blob uploads listing images to object storage and returns stable
// retrieval URLs.
package blob

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = eris.New("blob: object not found")

// ProgressFunc receives transfer progress. It is diagnostic only and may be
// called from the uploading goroutine at any rate.
type ProgressFunc func(transferred, total int64)

// Object describes a stored object.
type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Storage is an object store.
type Storage interface {
	// Upload stores data under key and returns its retrieval URL once the
	// transfer has completed.
	Upload(ctx context.Context, key, contentType string, data []byte, progress ProgressFunc) (Object, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
}

// Streamer is implemented by stores whose objects are served by this
// application rather than by the storage provider.
type Streamer interface {
	Stream(ctx context.Context, key string, w io.Writer) (int64, error)
}

// ObjectKey builds "{prefix}/{owner}-{file}-{uuid}". The random suffix keeps
// two uploads of the same file by the same owner from overwriting each other.
func ObjectKey(prefix, owner, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" {
		name = "image"
	}
	key := owner + "-" + name + "-" + uuid.NewString()
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

// escapeKey escapes each path segment of key for use in a URL path.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// joinURL appends an escaped key to a base URL.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + escapeKey(key)
}

// progressReader reports bytes read from an in-memory payload. Seeking
// rewinds the count, so a signer that reads the body twice is reported
// twice.
type progressReader struct {
	r        *bytes.Reader
	total    int64
	progress ProgressFunc
}

func newProgressReader(data []byte, progress ProgressFunc) *progressReader {
	return &progressReader{r: bytes.NewReader(data), total: int64(len(data)), progress: progress}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.progress != nil {
		p.progress(p.total-int64(p.r.Len()), p.total)
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	return p.r.Seek(offset, whence)
}
