package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Firebase FirebaseConfig `yaml:"firebase" mapstructure:"firebase"`
	Mongo    MongoConfig    `yaml:"mongo" mapstructure:"mongo"`
	Blob     BlobConfig     `yaml:"blob" mapstructure:"blob"`
	S3       S3Config       `yaml:"s3" mapstructure:"s3"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Upload   UploadConfig   `yaml:"upload" mapstructure:"upload"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the document database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, firestore, mongo
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// FirebaseConfig configures the Firebase app shared by Firestore, Storage
// and Auth.
type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id" mapstructure:"project_id"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	StorageBucket   string `yaml:"storage_bucket" mapstructure:"storage_bucket"`
}

// MongoConfig configures the MongoDB store and GridFS image storage.
type MongoConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	Database string `yaml:"database" mapstructure:"database"`
}

// BlobConfig selects the image storage.
type BlobConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"` // firebase, s3, gridfs
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
	PublicBaseURL string `yaml:"public_base_url" mapstructure:"public_base_url"`
}

// S3Config configures S3 or an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	Region    string `yaml:"region" mapstructure:"region"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	PathStyle bool   `yaml:"path_style" mapstructure:"path_style"`
	ACL       string `yaml:"acl" mapstructure:"acl"`
}

// GeocodeConfig configures address resolution.
type GeocodeConfig struct {
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
	GoogleKey     string  `yaml:"google_key" mapstructure:"google_key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	RedisURL      string  `yaml:"redis_url" mapstructure:"redis_url"`
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider"` // firebase, jwt
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// UploadConfig tunes image handling during submit.
type UploadConfig struct {
	MaxImages        int   `yaml:"max_images" mapstructure:"max_images"`
	Concurrency      int   `yaml:"concurrency" mapstructure:"concurrency"`
	MaxImageBytes    int64 `yaml:"max_image_bytes" mapstructure:"max_image_bytes"`
	CleanupOnFailure bool  `yaml:"cleanup_on_failure" mapstructure:"cleanup_on_failure"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	DraftTTLMins   int      `yaml:"draft_ttl_mins" mapstructure:"draft_ttl_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LISTINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key gets one so that environment overrides reach
	// Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "listings.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("firebase.project_id", "")
	v.SetDefault("firebase.credentials_file", "")
	v.SetDefault("firebase.storage_bucket", "")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "listings")
	v.SetDefault("blob.driver", "firebase")
	v.SetDefault("blob.prefix", "images")
	v.SetDefault("blob.public_base_url", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.path_style", false)
	v.SetDefault("s3.acl", "")
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.google_key", "")
	v.SetDefault("geocode.base_url", "")
	v.SetDefault("geocode.rate_limit", 25.0)
	v.SetDefault("geocode.cache_ttl_hours", 24*30)
	v.SetDefault("geocode.redis_url", "")
	v.SetDefault("auth.provider", "firebase")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("upload.max_images", 6)
	v.SetDefault("upload.concurrency", 0)
	v.SetDefault("upload.max_image_bytes", 2<<20)
	v.SetDefault("upload.cleanup_on_failure", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.draft_ttl_mins", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings the named command depends on. Commands that
// only read listings need a store; commands that submit also need image
// storage, a geocoder when enabled, and (for serve) token verification.
func (c *Config) Validate(command string) error {
	switch command {
	case "serve", "create", "get", "list", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", command)
	}

	var problems []string
	add := func(msg string) { problems = append(problems, msg) }

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for " + c.Store.Driver)
		}
	case "firestore":
		if c.Firebase.ProjectID == "" {
			add("firebase.project_id is required for the firestore store")
		}
	case "mongo":
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			add("mongo.uri and mongo.database are required for the mongo store")
		}
	default:
		add("store.driver must be sqlite, postgres, firestore or mongo")
	}

	if command == "serve" || command == "create" {
		switch c.Blob.Driver {
		case "firebase":
			if c.Firebase.StorageBucket == "" {
				add("firebase.storage_bucket is required for firebase image storage")
			}
		case "s3":
			if c.S3.Bucket == "" {
				add("s3.bucket is required for s3 image storage")
			}
		case "gridfs":
			if c.Mongo.URI == "" || c.Mongo.Database == "" {
				add("mongo.uri and mongo.database are required for gridfs image storage")
			}
		default:
			add("blob.driver must be firebase, s3 or gridfs")
		}
		if c.Geocode.Enabled && c.Geocode.GoogleKey == "" {
			add("geocode.google_key is required when geocode.enabled is true")
		}
		if c.Upload.MaxImages < 1 {
			add("upload.max_images must be at least 1")
		}
	}

	if command == "serve" {
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
		switch c.Auth.Provider {
		case "firebase":
			if c.Firebase.ProjectID == "" {
				add("firebase.project_id is required for firebase auth")
			}
		case "jwt":
			if c.Auth.JWTSecret == "" {
				add("auth.jwt_secret is required for jwt auth")
			}
		default:
			add("auth.provider must be firebase or jwt")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", command, strings.Join(problems, "; "))
	}
	return nil
}

// NeedsFirebase reports whether any configured component uses the Firebase
// app for the command.
func (c *Config) NeedsFirebase(command string) bool {
	if c.Store.Driver == "firestore" {
		return true
	}
	submits := command == "serve" || command == "create"
	if submits && c.Blob.Driver == "firebase" {
		return true
	}
	return command == "serve" && c.Auth.Provider == "firebase"
}

// NeedsMongo reports whether the store or image storage uses MongoDB.
func (c *Config) NeedsMongo(command string) bool {
	if c.Store.Driver == "mongo" {
		return true
	}
	return (command == "serve" || command == "create") && c.Blob.Driver == "gridfs"
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
