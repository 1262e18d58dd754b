package toolexec

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(0, clock)

	require.NoError(t, limiter.Admit("t", 2))
	require.NoError(t, limiter.Admit("t", 2))

	clock.Advance(10 * time.Second)
	err := limiter.Admit("t", 2)
	var rateErr *RateLimitError
	require.True(t, errors.As(err, &rateErr))
	assert.Equal(t, 2, rateErr.Limit)
	assert.Equal(t, DefaultRateWindow, rateErr.Window)
	assert.Equal(t, 50*time.Second, rateErr.RetryAfter)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, 2, limiter.Count("t"), "rejections are not counted")

	clock.Advance(50 * time.Second)
	assert.Equal(t, 0, limiter.Count("t"))
	require.NoError(t, limiter.Admit("t", 2))
	assert.Equal(t, 1, limiter.Count("t"))
}

func TestRateLimiterUnlimited(t *testing.T) {
	limiter := NewRateLimiter(time.Second, newFakeClock())
	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Admit("free", 0))
	}
	assert.Equal(t, 0, limiter.Count("free"))
}

func TestRateLimiterTracksToolsIndependently(t *testing.T) {
	limiter := NewRateLimiter(time.Second, newFakeClock())
	require.NoError(t, limiter.Admit("a", 1))
	require.NoError(t, limiter.Admit("b", 1))
	assert.Error(t, limiter.Admit("a", 1))

	limiter.Reset("a")
	assert.NoError(t, limiter.Admit("a", 1))
}
