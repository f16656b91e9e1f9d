package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, window time.Duration, max int) (*RateLimiter, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(epoch)
	rl, err := NewRateLimiter(RateLimitConfig{Window: window, MaxRequests: max}, clock, nil)
	require.NoError(t, err)
	return rl, clock
}

func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	rl, _ := newTestLimiter(t, time.Minute, 3)

	for i := 0; i < 3; i++ {
		res := rl.Check("u:1")
		require.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
		assert.Equal(t, epoch.Add(time.Minute), res.ResetAt)
	}

	res := rl.Check("u:1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 60, res.RetryAfterSec)
	assert.Equal(t, epoch.Add(time.Minute), res.ResetAt)
}

func TestRateLimiter_RetryAfterRoundsUp(t *testing.T) {
	rl, clock := newTestLimiter(t, 10*time.Second, 1)

	require.True(t, rl.Check("k").Allowed)
	clock.Advance(2500 * time.Millisecond)

	res := rl.Check("k")
	assert.False(t, res.Allowed)
	assert.Equal(t, 8, res.RetryAfterSec)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl, clock := newTestLimiter(t, time.Second, 2)

	require.True(t, rl.Check("k").Allowed)
	clock.Advance(500 * time.Millisecond)
	require.True(t, rl.Check("k").Allowed)
	require.False(t, rl.Check("k").Allowed)

	// первая отметка ровно на границе окна уже не считается
	clock.Advance(500 * time.Millisecond)
	res := rl.Check("k")
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(t, time.Minute, 1)

	require.True(t, rl.Check("a").Allowed)
	require.False(t, rl.Check("a").Allowed)
	assert.True(t, rl.Check("b").Allowed)
}

func TestRateLimiter_SweepDropsExpiredKeys(t *testing.T) {
	rl, clock := newTestLimiter(t, time.Second, 5)

	rl.Check("a")
	rl.Check("b")
	clock.Advance(500 * time.Millisecond)
	rl.Check("b")
	require.Equal(t, 2, rl.Keys())

	clock.Advance(600 * time.Millisecond)
	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 1, rl.Keys())

	clock.Advance(time.Second)
	rl.Sweep()
	assert.Equal(t, 0, rl.Keys())
}

func TestRateLimiter_InvalidConfig(t *testing.T) {
	_, err := NewRateLimiter(RateLimitConfig{Window: 0, MaxRequests: 1}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRateLimiter(RateLimitConfig{Window: time.Second}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRateLimiter_StartStop(t *testing.T) {
	rl, clock := newTestLimiter(t, 10*time.Millisecond, 1)
	rl.Check("k")
	clock.Advance(time.Second)

	rl.Start()
	assert.Eventually(t, func() bool { return rl.Keys() == 0 }, time.Second, 5*time.Millisecond)
	rl.Stop()
	rl.Stop()
}
