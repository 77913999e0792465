package function

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu      sync.Mutex
	created []*FunctionMeta
	batches [][]*FunctionMeta
}

func (r *memRepo) Create(_ context.Context, meta *FunctionMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, meta)
	return nil
}

func (r *memRepo) CreateBatch(ctx context.Context, metas []*FunctionMeta) error {
	r.mu.Lock()
	r.batches = append(r.batches, metas)
	r.mu.Unlock()
	for _, meta := range metas {
		if err := r.Create(ctx, meta); err != nil {
			return err
		}
	}
	return nil
}

func (r *memRepo) GetByVersionID(_ context.Context, versionID string) (*FunctionMeta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, meta := range r.created {
		if meta.VersionID == versionID {
			return meta, nil
		}
	}
	return nil, ErrFunctionNotFound
}

func (r *memRepo) List(_ context.Context, _ ListFilter, _, _ int) ([]*FunctionMeta, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created, int64(len(r.created)), nil
}

func writeFunctionFile(t *testing.T, dir, base, manifest, source string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, base+".manifest.json"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, base+".py"), []byte(source), 0o644))
}

func TestLoaderLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeFunctionFile(t, dir, "math_utils", `{
		"functions": [
			{"name": "add", "auth_level": "public", "tags": ["math"]},
			{"name": "sub", "auth_level": "auth"}
		],
		"requirements": ["numpy==1.26.0"]
	}`, "def add(p):\n    return p\n\ndef sub(p):\n    return p\n")
	writeFunctionFile(t, dir, "admin_tools", `{
		"functions": [{"name": "purge", "auth_level": "admin"}]
	}`, "def purge(p):\n    return None\n")

	registry := NewRegistry()
	repo := &memRepo{}
	loader := NewLoader(dir, registry, repo, zap.NewNop())

	require.NoError(t, loader.LoadAll(context.Background()))
	assert.Len(t, registry.All(), 3)
	assert.Len(t, repo.created, 3)

	// 版本镜像按文件分批写入，math_utils两个函数同一批
	require.Len(t, repo.batches, 2)
	batchSizes := []int{len(repo.batches[0]), len(repo.batches[1])}
	sort.Ints(batchSizes)
	assert.Equal(t, []int{1, 2}, batchSizes)

	add, err := registry.Get("add")
	require.NoError(t, err)
	assert.Equal(t, AuthLevelPublic, add.AuthLevel)
	assert.Equal(t, []string{"math"}, add.Tags)
	assert.Equal(t, []string{"numpy==1.26.0"}, add.Requirements)
	assert.Equal(t, filepath.Join(dir, "math_utils.py"), add.FilePath)

	sub, err := registry.Get("sub")
	require.NoError(t, err)
	// 同一文件的函数共享content_hash，各自独立VersionID
	assert.Equal(t, add.ContentHash, sub.ContentHash)
	assert.NotEqual(t, add.VersionID, sub.VersionID)
}

func TestLoaderBadFileDoesNotBlockOthers(t *testing.T) {
	dir := t.TempDir()
	writeFunctionFile(t, dir, "good", `{
		"functions": [{"name": "good_fn", "auth_level": "public"}]
	}`, "def good_fn(p):\n    return p\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.manifest.json"), []byte(`{not json`), 0o644))

	registry := NewRegistry()
	loader := NewLoader(dir, registry, &memRepo{}, zap.NewNop())

	require.NoError(t, loader.LoadAll(context.Background()))
	assert.Len(t, registry.All(), 1)
}

func TestLoaderMissingSourceFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan.manifest.json"), []byte(`{
		"functions": [{"name": "orphan_fn", "auth_level": "public"}]
	}`), 0o644))

	registry := NewRegistry()
	loader := NewLoader(dir, registry, &memRepo{}, zap.NewNop())

	err := loader.LoadFile(context.Background(), filepath.Join(dir, "orphan.manifest.json"))
	assert.Error(t, err)
	assert.Empty(t, registry.All())
}

func TestLoaderReloadIdenticalKeepsVersion(t *testing.T) {
	dir := t.TempDir()
	writeFunctionFile(t, dir, "stable", `{
		"functions": [{"name": "stable_fn", "auth_level": "public"}]
	}`, "def stable_fn(p):\n    return p\n")

	registry := NewRegistry()
	loader := NewLoader(dir, registry, &memRepo{}, zap.NewNop())

	require.NoError(t, loader.LoadAll(context.Background()))
	first, err := registry.Get("stable_fn")
	require.NoError(t, err)

	require.NoError(t, loader.LoadAll(context.Background()))
	second, err := registry.Get("stable_fn")
	require.NoError(t, err)
	assert.Equal(t, first.VersionID, second.VersionID)
}
