package ragcore

import (
	"context"
	"sort"

	"github.com/modularmind/ragcore/adapters"
	"github.com/modularmind/ragcore/internal/metrics"
)

// Reranker reorders a first-stage result list by joint (query, passage)
// relevance using a cross-encoder. Degradation is graceful by design:
// if no encoder is configured, or the encoder adapter errors, the
// input order is returned unchanged rather than failing the request —
// a cross-encoder is a quality improvement, not a correctness
// requirement.
type Reranker struct {
	encoder   adapters.CrossEncoder
	batchSize int
	recorder  *metrics.Recorder
}

// NewReranker builds a Reranker. encoder may be nil to disable
// reranking entirely (Rerank becomes a no-op pass-through).
func NewReranker(encoder adapters.CrossEncoder, batchSize int, recorder *metrics.Recorder) *Reranker {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Reranker{encoder: encoder, batchSize: batchSize, recorder: recorder}
}

// Rerank scores every result against query, in batches of r.batchSize,
// and returns them sorted by the cross-encoder's score, annotated with
// the score the first stage had produced before reranking. topK, if
// greater than zero, truncates the sorted output. threshold, if
// greater than zero, drops results whose reranked score falls below
// it.
func (r *Reranker) Rerank(ctx context.Context, query string, results []SearchResult, topK int, threshold float64) []SearchResult {
	if r.encoder == nil || len(results) <= 1 {
		return results
	}

	passages := make([]string, len(results))
	for i, res := range results {
		passages[i] = res.Text
	}

	scores := make([]float64, 0, len(passages))
	for start := 0; start < len(passages); start += r.batchSize {
		end := start + r.batchSize
		if end > len(passages) {
			end = len(passages)
		}
		batch, err := r.encoder.Score(ctx, query, passages[start:end])
		if err != nil {
			GlobalLogger.Warn("cross-encoder scoring failed, returning unranked results", "error", err)
			if r.recorder != nil {
				r.recorder.IncRerankFailure()
			}
			return results
		}
		if len(batch) != end-start {
			GlobalLogger.Warn("cross-encoder returned mismatched score count, returning unranked results")
			if r.recorder != nil {
				r.recorder.IncRerankFailure()
			}
			return results
		}
		scores = append(scores, batch...)
	}

	out := make([]SearchResult, len(results))
	for i, res := range results {
		reranked := res.withMetadata("original_score", res.Score)
		reranked = reranked.withMetadata("reranker", "cross-encoder")
		reranked.Score = scores[i]
		out[i] = reranked
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if threshold > 0 {
		filtered := out[:0]
		for _, res := range out {
			if res.Score >= threshold {
				filtered = append(filtered, res)
			}
		}
		out = filtered
	}

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}

	return out
}
