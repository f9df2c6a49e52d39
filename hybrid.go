package ragcore

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/modularmind/ragcore/adapters"
	"github.com/modularmind/ragcore/internal/bm25"
	"github.com/modularmind/ragcore/internal/fusion"
)

// HybridRetriever fans dense and sparse retrieval out concurrently and
// fuses their result lists by independent min-max normalization
// followed by an alpha-weighted sum, rather than rank-based fusion —
// the two component scores are meaningful distances in their own
// right and are worth preserving through the combination.
type HybridRetriever struct {
	bm25       *bm25.Index
	vectors    adapters.VectorStore
	embeddings adapters.Embeddings
	collection string
	alpha      float64
}

// NewHybridRetriever builds a HybridRetriever over the given sparse
// index and dense vector store.
func NewHybridRetriever(idx *bm25.Index, vectors adapters.VectorStore, embeddings adapters.Embeddings, collection string, alpha float64) *HybridRetriever {
	return &HybridRetriever{bm25: idx, vectors: vectors, embeddings: embeddings, collection: collection, alpha: alpha}
}

// Search runs BM25 and dense retrieval concurrently, each limited to
// topK candidates, and fuses them into a single ranked list.
func (h *HybridRetriever) Search(ctx context.Context, query string, topK int, filters Filters) ([]SearchResult, error) {
	var sparseResults []SearchResult
	var denseResults []SearchResult

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		raw := h.bm25.Search(gctx, query, topK, bm25.Filters(filters))
		sparseResults = make([]SearchResult, len(raw))
		for i, r := range raw {
			sparseResults[i] = SearchResult{ID: r.ID, Text: r.Text, Score: r.Score, Metadata: r.Metadata}
		}
		return nil
	})

	g.Go(func() error {
		if h.vectors == nil || h.embeddings == nil {
			return nil
		}
		vecs, err := h.embeddings.Embed(gctx, []string{query})
		if err != nil {
			GlobalLogger.Warn("embedding query failed, dense leg skipped", "error", err)
			return nil
		}
		if len(vecs) == 0 {
			return nil
		}
		matches, err := h.vectors.Search(gctx, h.collection, vecs[0], topK, filtersToMap(filters))
		if err != nil {
			GlobalLogger.Warn("vector search failed, dense leg skipped", "error", err)
			return nil
		}
		denseResults = make([]SearchResult, len(matches))
		for i, m := range matches {
			denseResults[i] = SearchResult{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, wrapInternal(err, "hybrid retrieval")
	}

	return fuseResults(denseResults, sparseResults, h.alpha), nil
}

func filtersToMap(f Filters) map[string]any {
	if f == nil {
		return nil
	}
	return map[string]any(f)
}

// fuseResults combines dense and sparse result lists the way the
// retrieval pipeline's fusion step does: each leg's raw scores are
// independently min-max normalized, then an item's fused score is the
// alpha-weighted sum of its normalized dense and sparse scores (0 for
// a leg that didn't return the item). Ties break on the higher dense
// score, then lexicographically on id, so fusion output is
// deterministic across runs with identical inputs.
func fuseResults(dense, sparse []SearchResult, alpha float64) []SearchResult {
	denseScores := make([]float64, len(dense))
	for i, r := range dense {
		denseScores[i] = r.Score
	}
	sparseScores := make([]float64, len(sparse))
	for i, r := range sparse {
		sparseScores[i] = r.Score
	}
	denseNorm := fusion.MinMaxNormalize(denseScores)
	sparseNorm := fusion.MinMaxNormalize(sparseScores)

	type combined struct {
		result     SearchResult
		denseScore float64
		denseNorm  float64
		sparseNorm float64
		seenDense  bool
		seenSparse bool
	}

	byID := make(map[string]*combined)
	order := make([]string, 0, len(dense)+len(sparse))

	for i, r := range dense {
		byID[r.ID] = &combined{result: r, denseScore: r.Score, denseNorm: denseNorm[i], seenDense: true}
		order = append(order, r.ID)
	}
	for i, r := range sparse {
		if c, ok := byID[r.ID]; ok {
			c.sparseNorm = sparseNorm[i]
			c.seenSparse = true
			if c.result.Text == "" {
				c.result.Text = r.Text
			}
			continue
		}
		byID[r.ID] = &combined{result: r, sparseNorm: sparseNorm[i], seenSparse: true}
		order = append(order, r.ID)
	}

	out := make([]SearchResult, 0, len(byID))
	for _, id := range order {
		c := byID[id]
		fused := fusion.WeightedSum(alpha, c.denseNorm, c.sparseNorm)
		res := c.result.withMetadata("retrieval_method", string(MethodHybrid))
		res = res.withMetadata("boosting", map[string]any{
			"dense_score":  c.denseNorm,
			"sparse_score": c.sparseNorm,
			"in_dense":     c.seenDense,
			"in_sparse":    c.seenSparse,
		})
		res.Score = fused
		out = append(out, res)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		di, dj := byID[out[i].ID].denseScore, byID[out[j].ID].denseScore
		if di != dj {
			return di > dj
		}
		return out[i].ID < out[j].ID
	})

	return out
}
