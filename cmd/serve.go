package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listings/internal/api"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the listings HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := newAPIServer(env)
		defer srv.Close()
		go srv.SweepDrafts(ctx, time.Minute)

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("store", cfg.Store.Driver),
			zap.String("blob", cfg.Blob.Driver),
			zap.Bool("geocoding", env.Submitter.Geocoding()),
		)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newAPIServer(env *appEnv) *api.Server {
	opts := []api.Option{
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		api.WithGeolocation(env.Submitter.Geocoding()),
		api.WithDraftTTL(time.Duration(cfg.Server.DraftTTLMins) * time.Minute),
	}
	if per := cfg.Upload.MaxImageBytes; per > 0 {
		// Room for every image plus the text fields.
		opts = append(opts, api.WithMaxUploadBytes(per*int64(cfg.Upload.MaxImages+1)))
	}
	if env.Images != nil {
		opts = append(opts, api.WithImages(env.Images))
	}
	return api.New(env.Submitter, env.Store, env.Verifier, opts...)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
