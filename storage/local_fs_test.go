package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-orchestrator/core/trainerrors"
)

func newTestStore(t *testing.T) *LocalFSStore {
	t.Helper()
	store, err := NewLocalFSStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func writeTempModel(t *testing.T, content string) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "best.pt")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	return src
}

func TestSaveStoresVersionedCopyWithLabels(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	src := writeTempModel(t, "weights-v1")

	meta, err := store.Save(ctx, "alice", "detector", src, []string{"cat", "dog"})
	require.NoError(t, err)

	assert.Regexp(t, `^detector_[0-9a-z]{26}\.pt$`, meta.ModelName)
	assert.False(t, meta.CreatedAt.IsZero())
	assert.Equal(t, []string{"cat", "dog"}, meta.Labels)

	content, err := os.ReadFile(meta.Path)
	require.NoError(t, err)
	assert.Equal(t, "weights-v1", string(content))

	labels, err := os.ReadFile(meta.Path + labelsSuffix)
	require.NoError(t, err)
	assert.Equal(t, "cat\ndog", string(labels))

	// The source file is copied, not moved.
	_, err = os.Stat(src)
	assert.NoError(t, err)
}

func TestSaveNeverOverwritesEarlierVersions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, "alice", "detector", writeTempModel(t, "v1"), nil)
	require.NoError(t, err)
	second, err := store.Save(ctx, "alice", "detector", writeTempModel(t, "v2"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	for path, want := range map[string]string{first.Path: "v1", second.Path: "v2"} {
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, string(content))
	}
}

func TestListReturnsSortedModelsWithoutSidecars(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "alice", "zebra", writeTempModel(t, "z"), nil)
	require.NoError(t, err)
	_, err = store.Save(ctx, "alice", "antelope", writeTempModel(t, "a"), []string{"horn"})
	require.NoError(t, err)

	metas, err := store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Contains(t, metas[0].ModelName, "antelope_")
	assert.Contains(t, metas[1].ModelName, "zebra_")
	assert.Equal(t, []string{"horn"}, metas[0].Labels)
	assert.Nil(t, metas[1].Labels)
}

func TestListUnknownTenantIsEmpty(t *testing.T) {
	store := newTestStore(t)

	metas, err := store.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestGetPathPrefersNewestVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "alice", "detector", writeTempModel(t, "old"), nil)
	require.NoError(t, err)
	newest, err := store.Save(ctx, "alice", "detector", writeTempModel(t, "new"), nil)
	require.NoError(t, err)

	path, err := store.GetPath(ctx, "alice", "detector")
	require.NoError(t, err)
	assert.Equal(t, newest.Path, path)

	// The full stored name also resolves.
	path, err = store.GetPath(ctx, "alice", newest.ModelName)
	require.NoError(t, err)
	assert.Equal(t, newest.Path, path)
}

func TestGetPathUnknownModel(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetPath(context.Background(), "alice", "missing")
	assert.True(t, trainerrors.IsNotFound(err))
}

func TestDeleteRemovesAllVersions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "alice", "detector", writeTempModel(t, "v1"), []string{"cat"})
	require.NoError(t, err)
	_, err = store.Save(ctx, "alice", "detector", writeTempModel(t, "v2"), []string{"cat"})
	require.NoError(t, err)

	removed, err := store.Delete(ctx, "alice", "detector")
	require.NoError(t, err)
	assert.True(t, removed)

	metas, err := store.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, metas)

	_, err = store.GetPath(ctx, "alice", "detector")
	assert.True(t, trainerrors.IsNotFound(err))

	removed, err = store.Delete(ctx, "alice", "detector")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestTenantsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, "alice", "detector", writeTempModel(t, "v1"), nil)
	require.NoError(t, err)

	metas, err := store.List(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, metas)

	_, err = store.GetPath(ctx, "bob", "detector")
	assert.True(t, trainerrors.IsNotFound(err))

	removed, err := store.Delete(ctx, "bob", "detector")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestTenantIDMustBeAPathComponent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	var invalid *trainerrors.ErrInvalidArgument

	_, err := store.List(ctx, "../alice")
	require.ErrorAs(t, err, &invalid)

	_, err = store.Save(ctx, "a/b", "detector", writeTempModel(t, "v1"), nil)
	require.ErrorAs(t, err, &invalid)
}
