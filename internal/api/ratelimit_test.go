package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_DeniedRequestsAreRefunded(t *testing.T) {
	l := NewLimiter(1, time.Hour, 2)
	t.Cleanup(l.Close)

	require.True(t, l.Allow("owner:alice").Allowed)
	require.True(t, l.Allow("owner:alice").Allowed)

	first := l.Allow("owner:alice")
	require.False(t, first.Allowed)
	assert.Equal(t, 0, first.Remaining)
	assert.InDelta(t, time.Hour.Seconds(), first.RetryAfter.Seconds(), 1)

	// Rejected reservations must not push the bucket further into debt.
	for range 20 {
		res := l.Allow("owner:alice")
		require.False(t, res.Allowed)
		assert.WithinDuration(t, first.ResetAt, res.ResetAt, time.Minute)
	}

	assert.True(t, l.Allow("owner:bob").Allowed, "buckets are per key")
}

func TestLimiter_CleanupDropsIdleFullBuckets(t *testing.T) {
	l := NewLimiter(60, time.Minute, 5)
	t.Cleanup(l.Close)

	l.Allow("owner:idle")
	l.cleanup(time.Now().Add(time.Hour))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.buckets)
}
