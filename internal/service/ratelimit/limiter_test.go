package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowDrainsCapacity(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("binance", 3, 1))
	}
	assert.False(t, l.Allow("binance", 3, 1))
}

func TestAllowRefillsOverTime(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New()
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("av", 1, 0.5))
	require.False(t, l.Allow("av", 1, 0.5))

	// Half a token per second: two seconds buys one request.
	now = now.Add(2 * time.Second)
	assert.True(t, l.Allow("av", 1, 0.5))
}

func TestBucketsAreIndependentPerKey(t *testing.T) {
	now := time.Unix(1000, 0)
	l := New()
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("binance", 1, 0))
	require.False(t, l.Allow("binance", 1, 0))
	assert.True(t, l.Allow("alphavantage", 1, 0))
}

func TestWaitBlocksUntilToken(t *testing.T) {
	l := New()
	require.True(t, l.Allow("src", 1, 50))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	err := l.Wait(ctx, "src", 1, 50)
	require.NoError(t, err)
	assert.Greater(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	l := New()
	require.True(t, l.Allow("src", 1, 0.001))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "src", 1, 0.001)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
