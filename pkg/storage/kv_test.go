package storage_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/storage"
)

func newKVBackend(t *testing.T) *storage.KVBackend {
	t.Helper()
	mr := miniredis.RunT(t)
	backend, err := storage.NewKVBackend("redis://"+mr.Addr(), storage.KVAccess{
		ToolsPrefix:     "codemode:tools",
		SkillsPrefix:    "codemode:skills",
		ArtifactsPrefix: "codemode:artifacts",
		DepsPrefix:      "codemode:deps",
	}, testr.New(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestKVBackendToolRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newKVBackend(t)
	store, err := backend.ToolDescriptorStore()
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, storage.ToolDescriptor{Name: "echo", Type: "cli", Description: "echoes input"}))
	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "echo", list[0].Name)

	require.NoError(t, store.Delete(ctx, "echo"))
	_, err = backend.Client().HGet(ctx, "codemode:tools", "echo").Result()
	require.Error(t, err)
}

func TestKVBackendArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newKVBackend(t)
	store, err := backend.ArtifactStore()
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, storage.Artifact{
		Meta: storage.ArtifactMeta{Name: "note", Type: storage.ArtifactString},
		Text: "hello",
	}))

	loaded, err := store.Load(ctx, "note")
	require.NoError(t, err)
	require.Equal(t, "hello", loaded.Text)
}

func TestKVBackendSerializableAccess(t *testing.T) {
	backend := newKVBackend(t)
	access, err := backend.SerializableAccess()
	require.NoError(t, err)
	kv, ok := access.(storage.KVAccess)
	require.True(t, ok)
	require.Equal(t, "codemode:tools", kv.ToolsPrefix)
	require.NotEmpty(t, kv.URL)
}
