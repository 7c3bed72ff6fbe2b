package storage_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/errs"
	"github.com/kagent-dev/codemode/pkg/storage"
)

func TestValidateName(t *testing.T) {
	bad := []string{"../x", "/abs", "a/../b", `a\b`, `\x`, ""}
	for _, name := range bad {
		err := storage.ValidateName(name)
		require.Error(t, err, name)
		require.Equal(t, errs.InvalidName, errs.KindOf(err))
	}

	require.NoError(t, storage.ValidateName("reports/q1"))
	require.NoError(t, storage.ValidateName("simple-name"))
}

func TestFileBackendArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewFileBackend(t.TempDir(), testr.New(t))
	store, err := backend.ArtifactStore()
	require.NoError(t, err)

	err = store.Save(ctx, storage.Artifact{
		Meta:       storage.ArtifactMeta{Name: "d.json", Description: "desc", Type: storage.ArtifactJSON},
		Structured: map[string]any{"k": float64(1)},
	})
	require.NoError(t, err)

	exists, err := store.Exists(ctx, "d.json")
	require.NoError(t, err)
	require.True(t, exists)

	loaded, err := store.Load(ctx, "d.json")
	require.NoError(t, err)
	require.Equal(t, map[string]any{"k": float64(1)}, loaded.Structured)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.Delete(ctx, "d.json"))
	exists, err = store.Exists(ctx, "d.json")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestFileBackendSkillStore(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewFileBackend(t.TempDir(), testr.New(t))
	store, err := backend.SkillSourceStore()
	require.NoError(t, err)

	src := "-- Triple a number\nfunction run(n)\n  return n * 3\nend\n"
	require.NoError(t, store.Save(ctx, storage.SkillRecord{Name: "triple", Source: src}))

	got, err := store.Get(ctx, "triple")
	require.NoError(t, err)
	require.Equal(t, "Triple a number", got.Description)

	_, err = store.Get(ctx, "nonexistent")
	require.Error(t, err)
	require.Equal(t, errs.NotFound, errs.KindOf(err))

	require.NoError(t, store.Delete(ctx, "triple"))
	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestFileBackendDeps(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewFileBackend(t.TempDir(), testr.New(t))
	store, err := backend.DepsStore()
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, "requests>=2.0"))
	require.NoError(t, store.Add(ctx, "requests>=2.0")) // idempotent
	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.Remove(ctx, "requests>=2.0"))
	list, err = store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestFileBackendSerializableAccess(t *testing.T) {
	backend := storage.NewFileBackend("/tmp/codemode-test", testr.New(t))
	access, err := backend.SerializableAccess()
	require.NoError(t, err)
	fa, ok := access.(storage.FileAccess)
	require.True(t, ok)
	require.Equal(t, "/tmp/codemode-test/tools", fa.ToolsDir)
}
