package vectorindex_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagent-dev/codemode/pkg/vectorindex"
)

// fakeEmbedder produces deterministic bag-of-words vectors over a fixed
// small vocabulary so similarity behaves predictably in tests without
// pulling in a real model.
type fakeEmbedder struct {
	calls int
	dim   int
	vocab []string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{dim: 8, vocab: []string{"triple", "number", "reverse", "string", "sum", "list", "fetch", "http"}}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	lower := strings.ToLower(text)
	vec := make([]float32, f.dim)
	for i, word := range f.vocab {
		if strings.Contains(lower, word) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (f *fakeEmbedder) ModelInfo() vectorindex.ModelInfo {
	return vectorindex.ModelInfo{Name: "fake", Dimension: f.dim, Version: "1"}
}

func TestMemoryContentHashGating(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder()
	idx := vectorindex.NewMemory(emb)

	hash1 := vectorindex.ContentHash("triple a number", "return n * 3")
	require.NoError(t, idx.Add(ctx, "triple", "triple a number", "return n * 3", hash1))
	require.NoError(t, idx.Add(ctx, "triple", "triple a number", "return n * 3", hash1))
	require.Equal(t, 2, emb.calls, "unchanged add must embed exactly once (desc+code), not twice")

	hash2 := vectorindex.ContentHash("triple a number, v2", "return n * 3")
	require.NoError(t, idx.Add(ctx, "triple", "triple a number, v2", "return n * 3", hash2))
	require.Equal(t, 4, emb.calls, "changed content must trigger exactly one more embedding pass")

	storedHash, found, err := idx.ContentHash(ctx, "triple")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, hash2, storedHash)
}

func TestMemorySearchWeightedScores(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder()
	idx := vectorindex.NewMemory(emb)

	require.NoError(t, idx.Add(ctx, "triple", "triple a number", "function run(n) return n*3 end",
		vectorindex.ContentHash("triple a number", "function run(n) return n*3 end")))
	require.NoError(t, idx.Add(ctx, "reverse", "reverse a string", "function run(s) return s:reverse() end",
		vectorindex.ContentHash("reverse a string", "function run(s) return s:reverse() end")))
	require.NoError(t, idx.Add(ctx, "fetch", "fetch from http", "function run(url) return http.get(url) end",
		vectorindex.ContentHash("fetch from http", "function run(url) return http.get(url) end")))

	results, err := idx.Search(ctx, "triple a number", 2, 0.6, 0.4)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "triple", results[0].ID)

	for i, r := range results {
		require.GreaterOrEqual(t, r.Score, 0.0)
		require.LessOrEqual(t, r.Score, 1.0)
		if i > 0 {
			require.LessOrEqual(t, r.Score, results[i-1].Score)
		}
	}
}

func TestMemoryRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	emb := newFakeEmbedder()
	idx := vectorindex.NewMemory(emb)

	require.NoError(t, idx.Add(ctx, "a", "sum a list", "function run(l) end", vectorindex.ContentHash("sum a list", "function run(l) end")))
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, idx.Remove(ctx, "a"))
	count, err = idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	require.NoError(t, idx.Add(ctx, "b", "sum a list", "function run(l) end", vectorindex.ContentHash("sum a list", "function run(l) end")))
	require.NoError(t, idx.Clear(ctx))
	count, err = idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestValidateID(t *testing.T) {
	require.NoError(t, vectorindex.ValidateID("triple_v2"))
	require.Error(t, vectorindex.ValidateID(""))
	require.Error(t, vectorindex.ValidateID("1leading-digit"))
	require.Error(t, vectorindex.ValidateID("has:colon"))
	require.Error(t, vectorindex.ValidateID("has[bracket]"))
}
