package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pinfetch/internal/metrics"
)

func TestLimiterWaitDelaysSameChat(t *testing.T) {
	metrics.Init()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, 1))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, 1))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterChatsAreIndependent(t *testing.T) {
	metrics.Init()

	l := New(Config{RPS: 1, Burst: 1})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, 1))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, 2))
	require.Less(t, time.Since(start), 50*time.Millisecond)
	require.Equal(t, 2, l.Len())
}

func TestLimiterContextCanceled(t *testing.T) {
	metrics.Init()

	l := New(Config{RPS: 0.1, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), 7))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, 7))
}

func TestLimiterUnlimited(t *testing.T) {
	metrics.Init()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), 3))
	}
}

func TestLimiterPrunesRefilledBuckets(t *testing.T) {
	metrics.Init()

	l := New(Config{RPS: 1000, Burst: 1, MaxChats: 2})
	ctx := context.Background()
	require.NoError(t, l.Wait(ctx, 1))
	require.NoError(t, l.Wait(ctx, 2))
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, l.Wait(ctx, 3))
	require.Equal(t, 1, l.Len())
}
