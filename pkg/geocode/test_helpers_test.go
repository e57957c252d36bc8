package geocode

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/listings/internal/resilience"
)

// newTestClient points a googleClient at srvURL with an unlimited rate and
// millisecond retries.
func newTestClient(srvURL string, opts ...Option) *googleClient {
	c := NewClient("test-key", append([]Option{
		WithBaseURL(srvURL),
		WithRetryPolicy(resilience.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
	}, opts...)...).(*googleClient)
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}

// memCache is an in-memory Cache for tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*Response
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*Response)}
}

func (m *memCache) Get(_ context.Context, key string) (*Response, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.entries[key]
	return r, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, resp *Response, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = resp
	m.sets++
	return nil
}
