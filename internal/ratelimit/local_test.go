package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackendCeiling(t *testing.T) {
	b := NewLocalBackend(2, time.Minute)
	ctx := context.Background()

	l1, err := b.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	_, err = b.TryAcquire(ctx, "alice")
	require.NoError(t, err)

	_, err = b.TryAcquire(ctx, "alice")
	assert.ErrorIs(t, err, ErrRateLimited)

	// 释放后槽位立即可用
	require.NoError(t, b.Release(ctx, l1))
	_, err = b.TryAcquire(ctx, "alice")
	assert.NoError(t, err)
}

func TestLocalBackendPerUserIsolation(t *testing.T) {
	b := NewLocalBackend(1, time.Minute)
	ctx := context.Background()

	_, err := b.TryAcquire(ctx, "alice")
	require.NoError(t, err)

	// 其他用户不受alice占用影响
	_, err = b.TryAcquire(ctx, "bob")
	assert.NoError(t, err)

	_, err = b.TryAcquire(ctx, "alice")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestLocalBackendExpiredLeaseReclaimed(t *testing.T) {
	b := NewLocalBackend(1, 10*time.Millisecond)
	ctx := context.Background()

	_, err := b.TryAcquire(ctx, "alice")
	require.NoError(t, err)
	_, err = b.TryAcquire(ctx, "alice")
	require.ErrorIs(t, err, ErrRateLimited)

	// 持有方崩溃未释放时由TTL回收
	time.Sleep(20 * time.Millisecond)
	_, err = b.TryAcquire(ctx, "alice")
	assert.NoError(t, err)
}

func TestLocalBackendDoubleReleaseHarmless(t *testing.T) {
	b := NewLocalBackend(1, time.Minute)
	ctx := context.Background()

	lease, err := b.TryAcquire(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, b.Release(ctx, lease))
	require.NoError(t, b.Release(ctx, lease))
	assert.Equal(t, 0, b.HeldCount("alice"))
}
