package ragcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modularmind/ragcore/adapters"
	"github.com/modularmind/ragcore/internal/bm25"
)

type stubEmbeddings struct {
	vector []float32
	err    error
}

func (s *stubEmbeddings) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEmbeddings) Dimension() int { return len(s.vector) }

func TestHybridSearch_NoVectorAdaptersFallsBackToSparseOnly(t *testing.T) {
	idx := bm25.New(bm25.DefaultParams())
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul", nil)
	idx.Rebuild(ctx)

	h := NewHybridRetriever(idx, nil, nil, "default", 0.7)
	got, err := h.Search(ctx, "car price istanbul", 10, nil)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
}

func TestHybridSearch_EmbeddingFailureDegradesToSparseOnly(t *testing.T) {
	idx := bm25.New(bm25.DefaultParams())
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul", nil)
	idx.Rebuild(ctx)

	vs := adapters.NewMemoryVectorStore()
	h := NewHybridRetriever(idx, vs, &stubEmbeddings{err: assert.AnError}, "default", 0.7)

	got, err := h.Search(ctx, "car price istanbul", 10, nil)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
}

func TestHybridSearch_FusesDenseAndSparseResults(t *testing.T) {
	idx := bm25.New(bm25.DefaultParams())
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul", nil)
	idx.Rebuild(ctx)

	vs := adapters.NewMemoryVectorStore()
	vs.Upsert("default", "p1", []float32{1, 0}, nil)
	vs.Upsert("default", "p3", []float32{0.9, 0.1}, nil)

	h := NewHybridRetriever(idx, vs, &stubEmbeddings{vector: []float32{1, 0}}, "default", 0.5)

	got, err := h.Search(ctx, "car price istanbul", 10, nil)

	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Contains(t, ids, "p1")
	assert.Contains(t, ids, "p3")

	for _, r := range got {
		if r.ID == "p1" {
			boosting, ok := r.Metadata["boosting"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, true, boosting["in_dense"])
			assert.Equal(t, true, boosting["in_sparse"])
		}
	}
}
