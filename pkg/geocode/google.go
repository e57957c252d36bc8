package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listings/internal/resilience"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Geocoding API status values.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusRequestDenied  = "REQUEST_DENIED"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusUnknownError   = "UNKNOWN_ERROR"
)

// Response is the subset of the Geocoding API answer the workflow consumes.
// Optional values are pointers so that absence can be told apart from zero.
type Response struct {
	Status       string   `json:"status"`
	Results      []Result `json:"results"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// Result is one candidate match.
type Result struct {
	Geometry         *Geometry `json:"geometry,omitempty"`
	FormattedAddress *string   `json:"formatted_address,omitempty"`
}

// Geometry holds the match location.
type Geometry struct {
	Location     *Location `json:"location,omitempty"`
	LocationType string    `json:"location_type,omitempty"`
}

// Location is a coordinate pair whose halves may each be missing.
type Location struct {
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

// Coordinates returns the first result's coordinates. Each value defaults to
// 0 independently when the response does not carry it.
func (r *Response) Coordinates() (lat, lng float64) {
	if r == nil || len(r.Results) == 0 {
		return 0, 0
	}
	g := r.Results[0].Geometry
	if g == nil || g.Location == nil {
		return 0, 0
	}
	if g.Location.Lat != nil {
		lat = *g.Location.Lat
	}
	if g.Location.Lng != nil {
		lng = *g.Location.Lng
	}
	return lat, lng
}

// Address returns the first result's formatted address. ok is false when the
// status is ZERO_RESULTS or the response has no formatted address.
func (r *Response) Address() (formatted string, ok bool) {
	if r == nil || r.Status == StatusZeroResults || len(r.Results) == 0 {
		return "", false
	}
	fa := r.Results[0].FormattedAddress
	if fa == nil {
		return "", false
	}
	return *fa, true
}

func (c *googleClient) lookupGoogle(ctx context.Context, address string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params := url.Values{
		"address": {address},
		"key":     {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.Retryable(eris.Wrap(err, "geocode: google request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: google returned status %d", resp.StatusCode)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Retryable(err)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.Retryable(eris.Wrap(err, "geocode: google read body"))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	switch strings.ToUpper(out.Status) {
	case StatusOverQueryLimit, StatusUnknownError:
		return nil, resilience.Retryable(eris.Errorf("geocode: google status %s", out.Status))
	case StatusRequestDenied:
		return nil, eris.Errorf("geocode: google request denied: %s", out.ErrorMessage)
	}
	return &out, nil
}
