package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listings/internal/auth"
	"github.com/sells-group/listings/internal/listing"
	"github.com/sells-group/listings/internal/model"
	"github.com/sells-group/listings/internal/store"
	"github.com/sells-group/listings/pkg/blob"
)

// maxListLimit caps the limit query parameter.
const maxListLimit = 200

type draftResponse struct {
	ID         string        `json:"id"`
	Submitting bool          `json:"submitting"`
	Draft      listing.Draft `json:"draft"`
}

func newDraftResponse(d *draft) draftResponse {
	return draftResponse{
		ID:         d.id,
		Submitting: d.form.Submitting(),
		Draft:      d.form.Snapshot(),
	}
}

type editRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type listResponse struct {
	Listings []model.Listing `json:"listings"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createDraft mounts a new form for the caller.
func (s *Server) createDraft(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	d := s.drafts.open(*id, s.workflow, s.geolocation)
	zap.L().Debug("api: draft opened", zap.String("draft", d.id), zap.String("owner", d.owner))

	w.Header().Set("Location", "/api/drafts/"+d.id)
	writeJSON(w, http.StatusCreated, newDraftResponse(d))
}

func (s *Server) getDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDraft(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

// editDraft applies one field edit. The value may be a JSON string or a bare
// JSON literal (number or boolean); both go through the same text coercion.
func (s *Server) editDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDraft(w, r)
	if !ok {
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	e, err := listing.ParseEdit(req.Field, rawValue(req.Value))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid value for field %q", req.Field))
		return
	}
	if err := d.form.Apply(e); err != nil {
		writeError(w, http.StatusGone, "Draft was closed")
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

// putImages replaces the draft's images with the uploaded files.
func (s *Server) putImages(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDraft(w, r)
	if !ok {
		return
	}
	if !s.parseMultipart(w, r) {
		return
	}
	images, err := readImages(r.MultipartForm.File[string(listing.FieldImages)])
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read images")
		return
	}
	if err := d.form.Apply(listing.SetImages{Images: images}); err != nil {
		writeError(w, http.StatusGone, "Draft was closed")
		return
	}
	writeJSON(w, http.StatusOK, newDraftResponse(d))
}

func (s *Server) submitDraft(w http.ResponseWriter, r *http.Request) {
	d, ok := s.lookupDraft(w, r)
	if !ok {
		return
	}
	res, err := d.form.Submit(r.Context())
	if err != nil {
		writeSubmitError(w, r, err)
		return
	}
	writeCreated(w, res)
}

func (s *Server) deleteDraft(w http.ResponseWriter, r *http.Request) {
	uid := callerUID(r)
	if err := s.drafts.remove(chi.URLParam(r, "draftID"), uid); err != nil {
		writeDraftError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createListing submits a listing in one multipart request: text fields by
// name plus image files under "images". It runs the same form and workflow
// as the draft endpoints.
func (s *Server) createListing(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if !s.parseMultipart(w, r) {
		return
	}

	form := listing.NewForm(s.workflow, s.geolocation)
	form.Mount(auth.NewSignedInSession(*id))
	defer form.Close()

	if err := fillForm(form, r.MultipartForm); err != nil {
		var fe *fieldError
		switch {
		case errors.As(err, &fe):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid value for field %q", fe.field))
		case errors.Is(err, errUnreadableImages):
			writeError(w, http.StatusBadRequest, "could not read images")
		default:
			zap.L().Error("api: fill listing form", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Something went wrong")
		}
		return
	}

	res, err := form.Submit(r.Context())
	if err != nil {
		writeSubmitError(w, r, err)
		return
	}
	writeCreated(w, res)
}

func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.ListingFilter

	if v := q.Get("type"); v != "" {
		k, err := model.ParseKind(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "type must be sale or rent")
			return
		}
		f.Kind = k
	}
	f.OwnerID = q.Get("userRef")
	if v := q.Get("offer"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offer must be true or false")
			return
		}
		f.OfferOnly = on
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		f.Limit = min(n, maxListLimit)
	}

	listings, err := s.store.ListListings(r.Context(), f)
	if err != nil {
		zap.L().Error("api: list listings", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list listings")
		return
	}
	if listings == nil {
		listings = []model.Listing{}
	}
	writeJSON(w, http.StatusOK, listResponse{Listings: listings})
}

func (s *Server) getListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.store.GetListing(r.Context(), chi.URLParam(r, "listingID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get listing", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load listing")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// streamImage serves an object from storage that has no public URLs.
// Object keys are unique, so responses are cacheable forever.
func (s *Server) streamImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	n, err := s.images.Stream(r.Context(), key, w)
	switch {
	case err == nil:
	case errors.Is(err, blob.ErrNotFound):
		w.Header().Del("Cache-Control")
		writeError(w, http.StatusNotFound, "image not found")
	case n == 0:
		zap.L().Error("api: stream image", zap.String("key", key), zap.Error(err))
		w.Header().Del("Cache-Control")
		writeError(w, http.StatusBadGateway, "could not load image")
	default:
		zap.L().Warn("api: image stream interrupted",
			zap.String("key", key),
			zap.Int64("bytes", n),
			zap.Error(err),
		)
	}
}

func (s *Server) lookupDraft(w http.ResponseWriter, r *http.Request) (*draft, bool) {
	d, err := s.drafts.get(chi.URLParam(r, "draftID"), callerUID(r))
	if err != nil {
		writeDraftError(w, err)
		return nil, false
	}
	return d, true
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	if r.ContentLength > s.maxUpload {
		writeError(w, http.StatusRequestEntityTooLarge, "upload is too large")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload is too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form")
		return false
	}
	return true
}

var errUnreadableImages = eris.New("api: could not read images")

// fieldError reports a multipart value that does not parse for its field.
type fieldError struct {
	field listing.Field
	err   error
}

func (e *fieldError) Error() string { return fmt.Sprintf("api: field %s: %v", e.field, e.err) }
func (e *fieldError) Unwrap() error { return e.err }

// fillForm applies the text fields and image files of mf to form.
func fillForm(form *listing.Form, mf *multipart.Form) error {
	for _, f := range listing.TextFields {
		v, ok := mf.Value[string(f)]
		if !ok || len(v) == 0 {
			continue
		}
		e, err := listing.ParseEdit(string(f), v[0])
		if err != nil {
			return &fieldError{field: f, err: err}
		}
		if err := form.Apply(e); err != nil {
			return err
		}
	}

	images, err := readImages(mf.File[string(listing.FieldImages)])
	if err != nil {
		return eris.Wrap(errUnreadableImages, err.Error())
	}
	return form.Apply(listing.SetImages{Images: images})
}

func writeDraftError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errDraftForbidden):
		writeError(w, http.StatusForbidden, "draft belongs to another user")
	default:
		writeError(w, http.StatusNotFound, "draft not found")
	}
}

func writeCreated(w http.ResponseWriter, res *listing.Result) {
	w.Header().Set("Location", "/api/listings/"+res.ID)
	writeJSON(w, http.StatusCreated, res)
}

func callerUID(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.UID
	}
	return ""
}

// rawValue turns a JSON string into its text and any other literal into its
// source text. null becomes "".
func rawValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	v := strings.TrimSpace(string(raw))
	if v == "null" {
		return ""
	}
	return v
}

func readImages(files []*multipart.FileHeader) ([]listing.Image, error) {
	images := make([]listing.Image, 0, len(files))
	for _, fh := range files {
		data, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		images = append(images, listing.Image{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return images, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "api: open upload %s", fh.Filename)
	}
	defer f.Close() //nolint:errcheck
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, eris.Wrapf(err, "api: read upload %s", fh.Filename)
	}
	return data, nil
}
