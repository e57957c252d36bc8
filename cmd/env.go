package main

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go"
	"github.com/rotisserie/eris"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/sells-group/listings/internal/auth"
	"github.com/sells-group/listings/internal/listing"
	"github.com/sells-group/listings/internal/store"
	"github.com/sells-group/listings/pkg/blob"
	"github.com/sells-group/listings/pkg/geocode"
)

// appEnv holds the collaborators a command needs. Fields a command does not
// use stay nil.
type appEnv struct {
	Store     store.Store
	Blobs     blob.Storage
	Images    blob.Streamer // set when the API has to serve images itself
	Geocoder  listing.Geocoder
	Verifier  auth.Verifier
	Submitter *listing.Submitter

	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close resource", zap.Error(err))
		}
	}
	e.closers = nil
}

func (e *appEnv) onClose(fn func() error) {
	e.closers = append(e.closers, fn)
}

// submits reports whether command runs the submission workflow.
func submits(command string) bool {
	return command == "serve" || command == "create"
}

// initEnv validates the configuration for command and builds its
// collaborators. Callers should defer env.Close().
func initEnv(ctx context.Context, command string) (*appEnv, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}

	env := &appEnv{}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	var (
		app *firebase.App
		mc  *mongo.Client
		err error
	)
	if cfg.NeedsFirebase(command) {
		app, err = initFirebase(ctx)
		if err != nil {
			return nil, err
		}
	}
	if cfg.NeedsMongo(command) {
		mc, err = store.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		// A mongo store disconnects the client itself.
		if cfg.Store.Driver != "mongo" {
			env.onClose(func() error { return mc.Disconnect(context.Background()) })
		}
	}

	env.Store, err = initStore(ctx, app, mc)
	if err != nil {
		return nil, err
	}
	env.onClose(env.Store.Close)

	if submits(command) {
		if err := env.initSubmitter(ctx, app, mc); err != nil {
			return nil, err
		}
	}

	if command == "serve" {
		env.Verifier, err = initVerifier(ctx, app)
		if err != nil {
			return nil, err
		}
	}

	ok = true
	return env, nil
}

func (e *appEnv) initSubmitter(ctx context.Context, app *firebase.App, mc *mongo.Client) error {
	blobs, err := initBlobs(ctx, app, mc)
	if err != nil {
		return err
	}
	e.Blobs = blobs
	if s, ok := blobs.(blob.Streamer); ok {
		e.Images = s
	}

	if cfg.Geocode.Enabled {
		gc, err := e.initGeocoder()
		if err != nil {
			return err
		}
		e.Geocoder = gc
	} else {
		zap.L().Info("address geocoding disabled, drafts must carry coordinates")
	}

	e.Submitter = listing.NewSubmitter(e.Geocoder, e.Blobs, e.Store,
		listing.WithMaxImages(cfg.Upload.MaxImages),
		listing.WithUploadConcurrency(cfg.Upload.Concurrency),
		listing.WithMaxImageBytes(cfg.Upload.MaxImageBytes),
		listing.WithCleanup(cfg.Upload.CleanupOnFailure),
		listing.WithKeyPrefix(cfg.Blob.Prefix),
	)
	return nil
}

func initFirebase(ctx context.Context) (*firebase.App, error) {
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.Firebase.ProjectID,
		StorageBucket: cfg.Firebase.StorageBucket,
	}, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "init firebase app")
	}
	return app, nil
}

func initStore(ctx context.Context, app *firebase.App, mc *mongo.Client) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "listings.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "firestore":
		if app == nil {
			return nil, eris.New("firestore store requires a firebase app")
		}
		client, err := app.Firestore(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "init firestore")
		}
		return store.NewFirestore(client), nil
	case "mongo":
		if mc == nil {
			return nil, eris.New("mongo store requires a mongo client")
		}
		return store.NewMongo(mc, cfg.Mongo.Database), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initBlobs(ctx context.Context, app *firebase.App, mc *mongo.Client) (blob.Storage, error) {
	switch cfg.Blob.Driver {
	case "firebase":
		if app == nil {
			return nil, eris.New("firebase image storage requires a firebase app")
		}
		client, err := app.Storage(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "init firebase storage")
		}
		return blob.NewFirebaseStorage(client, cfg.Firebase.StorageBucket)
	case "s3":
		return blob.NewS3Storage(blob.S3Config{
			Endpoint:      cfg.S3.Endpoint,
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PathStyle:     cfg.S3.PathStyle,
			ACL:           cfg.S3.ACL,
			PublicBaseURL: cfg.Blob.PublicBaseURL,
		})
	case "gridfs":
		if mc == nil {
			return nil, eris.New("gridfs image storage requires a mongo client")
		}
		return blob.NewGridFSStorage(mc.Database(cfg.Mongo.Database), "", gridFSBaseURL())
	default:
		return nil, eris.Errorf("unsupported blob driver: %s", cfg.Blob.Driver)
	}
}

// gridFSBaseURL is where the API serves GridFS images.
func gridFSBaseURL() string {
	if cfg.Blob.PublicBaseURL != "" {
		return cfg.Blob.PublicBaseURL
	}
	return fmt.Sprintf("http://localhost:%d/api/images", cfg.Server.Port)
}

func (e *appEnv) initGeocoder() (geocode.Client, error) {
	opts := []geocode.Option{geocode.WithRateLimit(cfg.Geocode.RateLimit)}
	if cfg.Geocode.BaseURL != "" {
		opts = append(opts, geocode.WithBaseURL(cfg.Geocode.BaseURL))
	}
	if cfg.Geocode.RedisURL != "" {
		cache, rdb, err := geocode.NewRedisCacheFromURL(cfg.Geocode.RedisURL)
		if err != nil {
			return nil, err
		}
		e.onClose(rdb.Close)
		ttl := time.Duration(cfg.Geocode.CacheTTLHours) * time.Hour
		opts = append(opts, geocode.WithCache(cache, ttl))
		zap.L().Info("geocode cache enabled", zap.Duration("ttl", ttl))
	}
	return geocode.NewClient(cfg.Geocode.GoogleKey, opts...), nil
}

func initVerifier(ctx context.Context, app *firebase.App) (auth.Verifier, error) {
	switch cfg.Auth.Provider {
	case "firebase":
		if app == nil {
			return nil, eris.New("firebase auth requires a firebase app")
		}
		client, err := app.Auth(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "init firebase auth")
		}
		return auth.NewFirebaseVerifier(client), nil
	case "jwt":
		return auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	default:
		return nil, eris.Errorf("unsupported auth provider: %s", cfg.Auth.Provider)
	}
}
