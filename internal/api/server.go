// Package api serves listing drafts, submission and browsing over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/listings/internal/auth"
	"github.com/sells-group/listings/internal/listing"
	"github.com/sells-group/listings/internal/store"
	"github.com/sells-group/listings/pkg/blob"
)

const (
	defaultDraftTTL  = time.Hour
	defaultMaxUpload = 64 << 20
	// multipartMemory is kept in memory by ParseMultipartForm; the rest
	// spills to temp files.
	multipartMemory = 8 << 20
)

// Option configures the server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithImages serves stored images under /api/images/. Only needed when the
// storage backend has no public URLs of its own.
func WithImages(st blob.Streamer) Option {
	return func(s *Server) { s.images = st }
}

// WithGeolocation sets the initial address-resolution setting of new drafts.
func WithGeolocation(on bool) Option {
	return func(s *Server) { s.geolocation = on }
}

// WithDraftTTL sets how long an idle draft is kept.
func WithDraftTTL(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.draftTTL = d
		}
	}
}

// WithMaxUploadBytes caps multipart request bodies.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// Server holds the HTTP handlers and the drafts mounted through them.
type Server struct {
	workflow listing.Workflow
	store    store.Store
	verifier auth.Verifier
	images   blob.Streamer
	drafts   *registry

	origins     []string
	geolocation bool
	draftTTL    time.Duration
	maxUpload   int64
}

// New builds a server around the submission workflow and the store used for
// browsing.
func New(w listing.Workflow, st store.Store, v auth.Verifier, opts ...Option) *Server {
	s := &Server{
		workflow:  w,
		store:     st,
		verifier:  v,
		drafts:    newRegistry(),
		draftTTL:  defaultDraftTTL,
		maxUpload: defaultMaxUpload,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		// Public browsing.
		r.Get("/listings", s.listListings)
		r.Get("/listings/{listingID}", s.getListing)
		r.Get("/images/*", s.streamImage)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.verifier))

			r.Post("/listings", s.createListing)
			r.Route("/drafts", func(r chi.Router) {
				r.Post("/", s.createDraft)
				r.Route("/{draftID}", func(r chi.Router) {
					r.Get("/", s.getDraft)
					r.Patch("/", s.editDraft)
					r.Delete("/", s.deleteDraft)
					r.Put("/images", s.putImages)
					r.Post("/submit", s.submitDraft)
				})
			})
		})
	})

	return r
}

// SweepDrafts closes drafts idle for longer than the draft TTL until ctx is
// done.
func (s *Server) SweepDrafts(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.drafts.sweep(s.draftTTL); n > 0 {
				zap.L().Info("api: expired idle drafts", zap.Int("count", n))
			}
		}
	}
}

// Close unmounts every open draft.
func (s *Server) Close() {
	s.drafts.closeAll()
}
