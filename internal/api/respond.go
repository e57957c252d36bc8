package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/listings/internal/listing"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeSubmitError reports a failed submit with its user notice and kind.
func writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, listing.ErrFormClosed) {
		writeError(w, http.StatusGone, "Draft was closed")
		return
	}

	kind, ok := listing.KindOf(err)
	if !ok {
		zap.L().Error("api: submit failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, listing.NoticeOf(err))
		return
	}

	status := submitStatus(kind)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: submit failed",
			zap.String("path", r.URL.Path),
			zap.Stringer("kind", kind),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: listing.NoticeOf(err), Kind: kind.String()})
}

func submitStatus(kind listing.ErrorKind) int {
	switch kind {
	case listing.InvalidPrice, listing.TooManyImages, listing.InvalidAddress, listing.InvalidDraft:
		return http.StatusUnprocessableEntity
	case listing.Unauthenticated:
		return http.StatusUnauthorized
	case listing.GeocodeUnavailable:
		return http.StatusServiceUnavailable
	case listing.ImageUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
