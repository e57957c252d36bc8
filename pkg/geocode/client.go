// Package geocode resolves free-text addresses to coordinates through the
// Google Geocoding API.
package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/listings/internal/resilience"
)

// ErrEmptyAddress is returned by Lookup for blank input.
var ErrEmptyAddress = eris.New("geocode: empty address")

// Client looks up addresses.
type Client interface {
	// Lookup returns the geocoder's answer for a single free-text address.
	// A well-formed answer with no match is not an error: inspect Status.
	Lookup(ctx context.Context, address string) (*Response, error)
}

// Option configures the client.
type Option func(*googleClient)

// WithBaseURL overrides the Geocoding API endpoint.
func WithBaseURL(u string) Option {
	return func(c *googleClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *googleClient) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second budget.
func WithRateLimit(rps float64) Option {
	return func(c *googleClient) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCache stores definitive answers (OK and ZERO_RESULTS) for ttl.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *googleClient) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithRetryPolicy overrides the retry policy for transient failures.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(c *googleClient) {
		c.retry = p
	}
}

// WithBreaker replaces the default circuit breaker. nil disables it.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *googleClient) {
		c.breaker = b
	}
}

type googleClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      resilience.Policy
	breaker    *resilience.Breaker
	cache      Cache
	cacheTTL   time.Duration
}

// NewClient creates a Google Geocoding client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &googleClient{
		apiKey:     apiKey,
		baseURL:    googleGeocodeURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(25, 25),
		retry:      resilience.DefaultPolicy("google", "geocode"),
		breaker:    resilience.NewBreaker("google-geocode", 5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *googleClient) Lookup(ctx context.Context, address string) (*Response, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrEmptyAddress
	}
	if c.apiKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	key := cacheKey(address)
	if c.cache != nil {
		cached, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			zap.L().Warn("geocode cache read failed", zap.Error(err))
		case ok:
			zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.String("status", cached.Status))
			return cached, nil
		}
	}

	resp, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) (*Response, error) {
		return resilience.Do(ctx, c.retry, func(ctx context.Context) (*Response, error) {
			return c.lookupGoogle(ctx, address)
		})
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil && (resp.Status == StatusOK || resp.Status == StatusZeroResults) {
		if err := c.cache.Set(ctx, key, resp, c.cacheTTL); err != nil {
			zap.L().Warn("geocode cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

// cacheKey is the SHA-256 hex of the normalized address.
func cacheKey(address string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(address)), " ")
	return fmt.Sprintf("%x", sha256.Sum256([]byte(normalized)))
}
