package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listings/internal/auth"
	"github.com/sells-group/listings/internal/config"
	"github.com/sells-group/listings/internal/store"
)

// offlineConfig needs no network: sqlite, an S3 endpoint that is never
// called, geocoding off and JWT auth.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "listings.db"),
		},
		Blob: config.BlobConfig{Driver: "s3", Prefix: "images"},
		S3: config.S3Config{
			Endpoint:  "http://127.0.0.1:1",
			Region:    "us-east-1",
			Bucket:    "listings",
			AccessKey: "key",
			SecretKey: "secret",
			PathStyle: true,
		},
		Geocode: config.GeocodeConfig{Enabled: false, RateLimit: 10},
		Auth:    config.AuthConfig{Provider: "jwt", JWTSecret: "s3cret"},
		Upload:  config.UploadConfig{MaxImages: 6, MaxImageBytes: 2 << 20, CleanupOnFailure: true},
		Server:  config.ServerConfig{Port: 8080, DraftTTLMins: 60},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestInitStore_SQLite(t *testing.T) {
	cfg = offlineConfig(t)

	st, err := initStore(context.Background(), nil, nil)
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck

	assert.IsType(t, &store.SQLiteStore{}, st)
}

func TestInitStore_MissingClients(t *testing.T) {
	for _, driver := range []string{"firestore", "mongo"} {
		cfg = offlineConfig(t)
		cfg.Store.Driver = driver

		_, err := initStore(context.Background(), nil, nil)
		assert.Error(t, err, driver)
	}
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = offlineConfig(t)
	cfg.Store.Driver = "cassandra"

	_, err := initStore(context.Background(), nil, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitBlobs_Unsupported(t *testing.T) {
	cfg = offlineConfig(t)
	cfg.Blob.Driver = "ftp"
	_, err := initBlobs(context.Background(), nil, nil)
	assert.Error(t, err)

	cfg.Blob.Driver = "gridfs"
	_, err = initBlobs(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestInitVerifier(t *testing.T) {
	cfg = offlineConfig(t)
	v, err := initVerifier(context.Background(), nil)
	require.NoError(t, err)
	assert.IsType(t, &auth.JWTVerifier{}, v)

	cfg.Auth.Provider = "firebase"
	_, err = initVerifier(context.Background(), nil)
	assert.Error(t, err)
}

func TestInitEnv_Serve(t *testing.T) {
	cfg = offlineConfig(t)

	env, err := initEnv(context.Background(), "serve")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Blobs)
	assert.Nil(t, env.Images, "s3 objects have public urls")
	assert.Nil(t, env.Geocoder)
	assert.NotNil(t, env.Verifier)
	require.NotNil(t, env.Submitter)
	assert.False(t, env.Submitter.Geocoding())
	assert.Equal(t, 6, env.Submitter.MaxImages())
}

func TestInitEnv_ReadOnlyCommands(t *testing.T) {
	cfg = offlineConfig(t)
	// Image storage and auth settings are irrelevant for browsing.
	cfg.Blob.Driver = ""
	cfg.Auth.Provider = ""

	for _, command := range []string{"get", "list", "migrate"} {
		env, err := initEnv(context.Background(), command)
		require.NoError(t, err, command)
		assert.NotNil(t, env.Store)
		assert.Nil(t, env.Blobs)
		assert.Nil(t, env.Submitter)
		assert.Nil(t, env.Verifier)
		env.Close()
	}
}

func TestInitEnv_Geocoder(t *testing.T) {
	cfg = offlineConfig(t)
	cfg.Geocode.Enabled = true
	cfg.Geocode.GoogleKey = "gkey"

	env, err := initEnv(context.Background(), "create")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Geocoder)
	assert.True(t, env.Submitter.Geocoding())
}

func TestInitEnv_BadRedisURL(t *testing.T) {
	cfg = offlineConfig(t)
	cfg.Geocode.Enabled = true
	cfg.Geocode.GoogleKey = "gkey"
	cfg.Geocode.RedisURL = "not a url"

	_, err := initEnv(context.Background(), "create")
	assert.Error(t, err)
}

func TestInitEnv_InvalidConfig(t *testing.T) {
	cfg = offlineConfig(t)
	cfg.S3.Bucket = ""

	_, err := initEnv(context.Background(), "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3.bucket is required")
}

func TestAppEnv_CloseReverseOrder(t *testing.T) {
	var order []int
	env := &appEnv{}
	env.onClose(func() error { order = append(order, 1); return nil })
	env.onClose(func() error { order = append(order, 2); return assert.AnError })
	env.onClose(func() error { order = append(order, 3); return nil })

	env.Close()
	env.Close()
	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestGridFSBaseURL(t *testing.T) {
	cfg = offlineConfig(t)
	assert.Equal(t, "http://localhost:8080/api/images", gridFSBaseURL())

	cfg.Blob.PublicBaseURL = "https://listings.test/api/images"
	assert.Equal(t, "https://listings.test/api/images", gridFSBaseURL())
}

func TestNewAPIServer(t *testing.T) {
	cfg = offlineConfig(t)
	env, err := initEnv(context.Background(), "serve")
	require.NoError(t, err)
	defer env.Close()

	srv := newAPIServer(env)
	defer srv.Close()

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drafts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
