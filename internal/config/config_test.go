package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "listings.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "firebase", cfg.Blob.Driver)
	assert.Equal(t, "images", cfg.Blob.Prefix)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Equal(t, "listings", cfg.Mongo.Database)
	assert.True(t, cfg.Geocode.Enabled)
	assert.InDelta(t, 25.0, cfg.Geocode.RateLimit, 0.001)
	assert.Equal(t, 720, cfg.Geocode.CacheTTLHours)
	assert.Equal(t, "firebase", cfg.Auth.Provider)
	assert.Equal(t, 6, cfg.Upload.MaxImages)
	assert.Equal(t, 0, cfg.Upload.Concurrency)
	assert.Equal(t, int64(2<<20), cfg.Upload.MaxImageBytes)
	assert.True(t, cfg.Upload.CleanupOnFailure)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/listings
blob:
  driver: s3
s3:
  bucket: listing-images
  path_style: true
geocode:
  enabled: false
upload:
  max_images: 4
  cleanup_on_failure: false
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/listings", cfg.Store.DatabaseURL)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.Equal(t, "listing-images", cfg.S3.Bucket)
	assert.True(t, cfg.S3.PathStyle)
	assert.False(t, cfg.Geocode.Enabled)
	assert.Equal(t, 4, cfg.Upload.MaxImages)
	assert.False(t, cfg.Upload.CleanupOnFailure)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LISTINGS_STORE_DRIVER", "mongo")
	t.Setenv("LISTINGS_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LISTINGS_SERVER_PORT", "3000")
	t.Setenv("LISTINGS_GEOCODE_GOOGLE_KEY", "gkey")
	t.Setenv("LISTINGS_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "gkey", cfg.Geocode.GoogleKey)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config that passes validation for every command.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "listings.db"
	cfg.Firebase.ProjectID = "demo-listings"
	cfg.Firebase.StorageBucket = "demo-listings.appspot.com"
	cfg.Blob.Driver = "firebase"
	cfg.Geocode.Enabled = true
	cfg.Geocode.GoogleKey = "gkey"
	cfg.Auth.Provider = "firebase"
	cfg.Upload.MaxImages = 6
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllCommands(t *testing.T) {
	cfg := validDefaults()
	for _, cmd := range []string{"serve", "create", "get", "list", "migrate"} {
		assert.NoError(t, cfg.Validate(cmd), cmd)
	}
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_StoreDrivers(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"postgres", func(c *Config) { c.Store.Driver = "postgres"; c.Store.DatabaseURL = "postgres://x" }, ""},
		{"postgres no url", func(c *Config) { c.Store.Driver = "postgres"; c.Store.DatabaseURL = "" }, "store.database_url is required"},
		{"firestore", func(c *Config) { c.Store.Driver = "firestore" }, ""},
		{"firestore no project", func(c *Config) { c.Store.Driver = "firestore"; c.Firebase.ProjectID = "" }, "firebase.project_id is required"},
		{"mongo", func(c *Config) { c.Store.Driver = "mongo"; c.Mongo.URI = "mongodb://x"; c.Mongo.Database = "db" }, ""},
		{"mongo no uri", func(c *Config) { c.Store.Driver = "mongo" }, "mongo.uri and mongo.database are required"},
		{"unknown", func(c *Config) { c.Store.Driver = "cassandra" }, "store.driver must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("list")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCreate_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Firebase.StorageBucket = ""
	cfg.Geocode.GoogleKey = ""
	cfg.Upload.MaxImages = 0

	err := cfg.Validate("create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "firebase.storage_bucket is required")
	assert.Contains(t, err.Error(), "geocode.google_key is required")
	assert.Contains(t, err.Error(), "upload.max_images must be at least 1")

	// Read-only commands do not need image storage or geocoding.
	assert.NoError(t, cfg.Validate("get"))
}

func TestValidateCreate_GeocodeDisabled(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.Enabled = false
	cfg.Geocode.GoogleKey = ""

	assert.NoError(t, cfg.Validate("create"))
}

func TestValidateCreate_BlobDrivers(t *testing.T) {
	cfg := validDefaults()
	cfg.Blob.Driver = "s3"
	err := cfg.Validate("create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3.bucket is required")

	cfg.S3.Bucket = "images"
	assert.NoError(t, cfg.Validate("create"))

	cfg.Blob.Driver = "gridfs"
	cfg.Mongo.URI = "mongodb://localhost"
	cfg.Mongo.Database = "listings"
	assert.NoError(t, cfg.Validate("create"))

	cfg.Blob.Driver = "ftp"
	assert.Error(t, cfg.Validate("create"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_Auth(t *testing.T) {
	cfg := validDefaults()
	cfg.Auth.Provider = "jwt"
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")

	cfg.Auth.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Auth.Provider = "oauth"
	assert.Error(t, cfg.Validate("serve"))
}

func TestNeedsFirebase(t *testing.T) {
	cfg := validDefaults()
	assert.True(t, cfg.NeedsFirebase("serve"))
	assert.True(t, cfg.NeedsFirebase("create"))
	assert.False(t, cfg.NeedsFirebase("list"))

	cfg.Store.Driver = "firestore"
	assert.True(t, cfg.NeedsFirebase("list"))

	cfg.Store.Driver = "sqlite"
	cfg.Blob.Driver = "s3"
	cfg.Auth.Provider = "jwt"
	assert.False(t, cfg.NeedsFirebase("serve"))
}

func TestNeedsMongo(t *testing.T) {
	cfg := validDefaults()
	assert.False(t, cfg.NeedsMongo("serve"))

	cfg.Blob.Driver = "gridfs"
	assert.True(t, cfg.NeedsMongo("create"))
	assert.False(t, cfg.NeedsMongo("get"))

	cfg.Store.Driver = "mongo"
	assert.True(t, cfg.NeedsMongo("get"))
}
