package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker("test", threshold, time.Minute)
	b.now = clock.now
	return b, clock
}

func failing(context.Context) (int, error) { return 0, Retryable(errors.New("503")) }
func ok(context.Context) (int, error)      { return 1, nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	for range 3 {
		_, err := Call(ctx, b, failing)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBreakerOpen)
	}
	assert.Equal(t, BreakerOpen, b.State())

	calls := 0
	_, err := Call(ctx, b, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrBreakerOpen)
	assert.Zero(t, calls)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(2)
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	_, err := Call(ctx, b, ok)
	require.NoError(t, err)
	_, _ = Call(ctx, b, failing)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(1)
	_, err := Call(context.Background(), b, func(context.Context) (int, error) {
		return 0, errors.New("request denied")
	})
	require.Error(t, err)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clock := newTestBreaker(1)
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	require.Equal(t, BreakerOpen, b.State())

	clock.advance(time.Minute)
	assert.Equal(t, BreakerHalfOpen, b.State())

	_, err := Call(ctx, b, failing)
	assert.NotErrorIs(t, err, ErrBreakerOpen, "trial call reaches the collaborator")
	assert.Equal(t, BreakerOpen, b.State(), "failed trial call reopens")

	clock.advance(time.Minute)
	v, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_SingleProbe(t *testing.T) {
	b, clock := newTestBreaker(1)
	ctx := context.Background()
	_, _ = Call(ctx, b, failing)
	clock.advance(time.Minute)

	release := make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := Call(ctx, b, func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
		done <- err
	}()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.trialing
	}, time.Second, time.Millisecond)

	_, err := Call(ctx, b, ok)
	assert.ErrorIs(t, err, ErrBreakerOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_CallerCancellationIsNeutral(t *testing.T) {
	b, clock := newTestBreaker(2)
	ctx := context.Background()

	_, _ = Call(ctx, b, failing)
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		for range 3 {
			_, err := Call(ctx, b, func(context.Context) (int, error) { return 0, cause })
			assert.ErrorIs(t, err, cause)
		}
	}
	assert.Equal(t, BreakerClosed, b.State())

	// One more real failure still reaches the threshold.
	_, _ = Call(ctx, b, failing)
	require.Equal(t, BreakerOpen, b.State())

	// A cancelled half-open trial call frees the slot for the next caller.
	clock.advance(time.Minute)
	_, err := Call(ctx, b, func(context.Context) (int, error) { return 0, context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	v, err := Call(ctx, b, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, BreakerClosed, b.State())
}

func TestBreaker_Nil(t *testing.T) {
	v, err := Call(context.Background(), nil, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half-open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
