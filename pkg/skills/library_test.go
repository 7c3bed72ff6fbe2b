package skills_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/skills"
	"github.com/kagent-dev/codemode/pkg/storage"
	"github.com/kagent-dev/codemode/pkg/vectorindex"
)

type fakeEmbedder struct {
	calls int
	vocab []string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vocab: []string{"triple", "number", "reverse", "string"}}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	lower := strings.ToLower(text)
	vec := make([]float32, len(f.vocab))
	for i, word := range f.vocab {
		if strings.Contains(lower, word) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (f *fakeEmbedder) ModelInfo() vectorindex.ModelInfo {
	return vectorindex.ModelInfo{Name: "fake", Dimension: len(f.vocab)}
}

func TestLibraryAddGetRemove(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileBackend(t.TempDir(), testr.New(t))
	skillStore, err := store.SkillSourceStore()
	require.NoError(t, err)

	lib := skills.New(skillStore, nil, newFakeEmbedder(), testr.New(t))

	require.NoError(t, lib.Add(ctx, skills.Skill{
		Name:        "triple",
		Description: "Triple a number",
		Source:      "function run(n)\n  return n * 3\nend\n",
	}))

	got, err := lib.Get(ctx, "triple")
	require.NoError(t, err)
	require.Equal(t, "Triple a number", got.Description)

	list, err := lib.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, lib.Remove(ctx, "triple"))
	list, err = lib.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestLibraryRejectsInvalidSkill(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileBackend(t.TempDir(), testr.New(t))
	skillStore, err := store.SkillSourceStore()
	require.NoError(t, err)
	lib := skills.New(skillStore, nil, newFakeEmbedder(), testr.New(t))

	err = lib.Add(ctx, skills.Skill{Name: "tools", Description: "d", Source: "function run() end"})
	require.Error(t, err)

	err = lib.Add(ctx, skills.Skill{Name: "bad", Description: "d", Source: "x = 1"})
	require.Error(t, err)
}

func TestLibrarySearchWithFallback(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileBackend(t.TempDir(), testr.New(t))
	skillStore, err := store.SkillSourceStore()
	require.NoError(t, err)
	lib := skills.New(skillStore, nil, newFakeEmbedder(), testr.New(t))

	require.NoError(t, lib.Add(ctx, skills.Skill{
		Name: "triple", Description: "Triple a number", Source: "function run(n)\n  return n * 3\nend\n",
	}))
	require.NoError(t, lib.Add(ctx, skills.Skill{
		Name: "reverse", Description: "Reverse a string", Source: "function run(s)\n  return string.reverse(s)\nend\n",
	}))

	results, err := lib.Search(ctx, "triple a number", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "triple", results[0].Name)
}

func TestLibraryRefreshIsContentHashGated(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileBackend(t.TempDir(), testr.New(t))
	skillStore, err := store.SkillSourceStore()
	require.NoError(t, err)
	embedder := newFakeEmbedder()
	lib := skills.New(skillStore, nil, embedder, testr.New(t))

	require.NoError(t, lib.Add(ctx, skills.Skill{
		Name: "triple", Description: "Triple a number", Source: "function run(n)\n  return n * 3\nend\n",
	}))
	callsAfterAdd := embedder.calls

	require.NoError(t, lib.Refresh(ctx))
	require.Equal(t, callsAfterAdd, embedder.calls, "warm refresh of unchanged skill must not re-embed")
}

func TestLibrarySearchFiltersStaleIndexEntries(t *testing.T) {
	ctx := context.Background()
	store := storage.NewFileBackend(t.TempDir(), testr.New(t))
	skillStore, err := store.SkillSourceStore()
	require.NoError(t, err)
	embedder := newFakeEmbedder()
	index := vectorindex.NewMemory(embedder)
	lib := skills.New(skillStore, index, nil, testr.New(t))

	require.NoError(t, lib.Add(ctx, skills.Skill{
		Name: "triple", Description: "Triple a number", Source: "function run(n)\n  return n * 3\nend\n",
	}))

	// Index entry for a skill that was removed directly from the store,
	// simulating a stale index without going through lib.Remove.
	require.NoError(t, index.Add(ctx, "ghost", "a ghost number skill", "function run() end",
		vectorindex.ContentHash("a ghost number skill", "function run() end")))

	results, err := lib.Search(ctx, "number", 5)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, "ghost", r.Name)
	}
}
