package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/funcbase/engine/internal/biz/function"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubHandle struct {
	versionID string

	mu     sync.Mutex
	killed bool
}

func (h *stubHandle) VersionID() string { return h.versionID }

func (h *stubHandle) Invoke(_ context.Context, _ uint64, payload []byte, _ time.Duration) ([]byte, error) {
	return payload, nil
}

func (h *stubHandle) Kill() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
}

func (h *stubHandle) isKilled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killed
}

type stubVersions struct {
	mu       sync.Mutex
	versions map[string]string
}

func (v *stubVersions) CurrentVersion(name string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.versions[name]
}

func (v *stubVersions) set(name, versionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.versions[name] = versionID
}

type poolFixture struct {
	pool     *Pool
	versions *stubVersions
	spawned  *int
}

func newPoolFixture(t *testing.T, opts Options) *poolFixture {
	t.Helper()

	versions := &stubVersions{versions: make(map[string]string)}
	spawned := 0
	spawn := func(_ context.Context, meta *function.FunctionMeta) (Handle, error) {
		spawned++
		return &stubHandle{versionID: meta.VersionID}, nil
	}

	if opts.ReapInterval == 0 {
		opts.ReapInterval = time.Hour
	}
	p := NewPool(spawn, versions, opts, zap.NewNop())
	t.Cleanup(p.Close)

	return &poolFixture{pool: p, versions: versions, spawned: &spawned}
}

func poolMeta(name, versionID string) *function.FunctionMeta {
	return &function.FunctionMeta{Name: name, VersionID: versionID}
}

func TestPoolWarmReuse(t *testing.T) {
	f := newPoolFixture(t, Options{})
	f.versions.set("echo", "v1")
	meta := poolMeta("echo", "v1")

	h1, err := f.pool.Acquire(context.Background(), meta)
	require.NoError(t, err)
	assert.Equal(t, 1, *f.spawned)

	f.pool.Release("echo", h1, true)
	require.Equal(t, 1, f.pool.IdleCount("v1"))

	// 暖命中，不再冷启动
	h2, err := f.pool.Acquire(context.Background(), meta)
	require.NoError(t, err)
	assert.Same(t, h1, h2)
	assert.Equal(t, 1, *f.spawned)
	assert.Equal(t, 0, f.pool.IdleCount("v1"))
}

func TestPoolUnhealthyReleaseDiscards(t *testing.T) {
	f := newPoolFixture(t, Options{})
	f.versions.set("echo", "v1")
	meta := poolMeta("echo", "v1")

	h, err := f.pool.Acquire(context.Background(), meta)
	require.NoError(t, err)

	f.pool.Release("echo", h, false)
	assert.True(t, h.(*stubHandle).isKilled())
	assert.Equal(t, 0, f.pool.IdleCount("v1"))

	_, err = f.pool.Acquire(context.Background(), meta)
	require.NoError(t, err)
	assert.Equal(t, 2, *f.spawned)
}

func TestPoolIdleCapPerVersion(t *testing.T) {
	f := newPoolFixture(t, Options{MaxIdlePerVersion: 1})
	f.versions.set("echo", "v1")
	meta := poolMeta("echo", "v1")

	h1, err := f.pool.Acquire(context.Background(), meta)
	require.NoError(t, err)
	h2, err := f.pool.Acquire(context.Background(), meta)
	require.NoError(t, err)

	f.pool.Release("echo", h1, true)
	f.pool.Release("echo", h2, true)

	// 超出闲置上限的被销毁而不是回池
	assert.Equal(t, 1, f.pool.IdleCount("v1"))
	assert.True(t, h2.(*stubHandle).isKilled())
	assert.False(t, h1.(*stubHandle).isKilled())
}

func TestPoolStaleVersionNotPooled(t *testing.T) {
	f := newPoolFixture(t, Options{})
	f.versions.set("echo", "v1")
	meta := poolMeta("echo", "v1")

	h, err := f.pool.Acquire(context.Background(), meta)
	require.NoError(t, err)

	// 归还前函数被替换为新版本
	f.versions.set("echo", "v2")
	f.pool.Release("echo", h, true)

	assert.True(t, h.(*stubHandle).isKilled())
	assert.Equal(t, 0, f.pool.IdleCount("v1"))
}

func TestPoolReapEvictsIdleAndStale(t *testing.T) {
	f := newPoolFixture(t, Options{IdleTTL: time.Minute})
	f.versions.set("echo", "v1")
	f.versions.set("sum", "v9")

	h1, err := f.pool.Acquire(context.Background(), poolMeta("echo", "v1"))
	require.NoError(t, err)
	h2, err := f.pool.Acquire(context.Background(), poolMeta("sum", "v9"))
	require.NoError(t, err)

	f.pool.Release("echo", h1, true)
	f.pool.Release("sum", h2, true)

	// echo被替换为新版本，sum保持当前版本且未超TTL
	f.versions.set("echo", "v2")
	f.pool.Reap(time.Now())

	assert.True(t, h1.(*stubHandle).isKilled())
	assert.False(t, h2.(*stubHandle).isKilled())
	assert.Equal(t, 0, f.pool.IdleCount("v1"))
	assert.Equal(t, 1, f.pool.IdleCount("v9"))

	// 超过TTL后sum也被回收
	f.pool.Reap(time.Now().Add(2 * time.Minute))
	assert.True(t, h2.(*stubHandle).isKilled())
	assert.Equal(t, 0, f.pool.IdleCount("v9"))
}

func TestPoolCloseKillsIdleAndRejectsAcquire(t *testing.T) {
	versions := &stubVersions{versions: map[string]string{"echo": "v1"}}
	spawn := func(_ context.Context, meta *function.FunctionMeta) (Handle, error) {
		return &stubHandle{versionID: meta.VersionID}, nil
	}
	p := NewPool(spawn, versions, Options{ReapInterval: time.Hour}, zap.NewNop())

	h, err := p.Acquire(context.Background(), poolMeta("echo", "v1"))
	require.NoError(t, err)
	p.Release("echo", h, true)

	p.Close()
	assert.True(t, h.(*stubHandle).isKilled())

	_, err = p.Acquire(context.Background(), poolMeta("echo", "v1"))
	assert.ErrorIs(t, err, ErrPoolClosed)

	// 幂等
	p.Close()
}
