package ragcore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modularmind/ragcore/internal/metrics"
)

type stubCrossEncoder struct {
	scores []float64
	err    error
}

func (s *stubCrossEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	return s.scores, s.err
}

func TestRerank_NoEncoderPassesThrough(t *testing.T) {
	r := NewReranker(nil, 0, nil)
	results := []SearchResult{{ID: "a", Score: 0.1}, {ID: "b", Score: 0.9}}

	got := r.Rerank(context.Background(), "q", results, 0, 0)

	assert.Equal(t, results, got)
}

func TestRerank_SingleResultPassesThrough(t *testing.T) {
	r := NewReranker(&stubCrossEncoder{scores: []float64{0.5}}, 0, nil)
	results := []SearchResult{{ID: "a", Score: 0.1}}

	got := r.Rerank(context.Background(), "q", results, 0, 0)

	assert.Equal(t, results, got)
}

func TestRerank_ReordersByEncoderScore(t *testing.T) {
	r := NewReranker(&stubCrossEncoder{scores: []float64{0.1, 0.9}}, 0, nil)
	results := []SearchResult{{ID: "a", Text: "first", Score: 0.9}, {ID: "b", Text: "second", Score: 0.1}}

	got := r.Rerank(context.Background(), "q", results, 0, 0)

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, 0.1, got[0].Metadata["original_score"], "b's pre-rerank score was 0.1")
	assert.Equal(t, "cross-encoder", got[0].Metadata["reranker"])
}

func TestRerank_EncoderErrorDegradesToOriginalOrder(t *testing.T) {
	recorder := metrics.New()
	r := NewReranker(&stubCrossEncoder{err: errors.New("boom")}, 0, recorder)
	results := []SearchResult{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.1}}

	got := r.Rerank(context.Background(), "q", results, 0, 0)

	assert.Equal(t, results, got)
}

func TestRerank_MismatchedScoreCountDegradesToOriginalOrder(t *testing.T) {
	r := NewReranker(&stubCrossEncoder{scores: []float64{0.5}}, 0, nil)
	results := []SearchResult{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.1}}

	got := r.Rerank(context.Background(), "q", results, 0, 0)

	assert.Equal(t, results, got)
}

func TestRerank_TopKTruncatesSortedOutput(t *testing.T) {
	r := NewReranker(&stubCrossEncoder{scores: []float64{0.1, 0.9, 0.5}}, 0, nil)
	results := []SearchResult{{ID: "a", Score: 0.1}, {ID: "b", Score: 0.2}, {ID: "c", Score: 0.3}}

	got := r.Rerank(context.Background(), "q", results, 2, 0)

	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestRerank_ThresholdDropsLowScoringResults(t *testing.T) {
	r := NewReranker(&stubCrossEncoder{scores: []float64{0.1, 0.9}}, 0, nil)
	results := []SearchResult{{ID: "a", Score: 0.1}, {ID: "b", Score: 0.2}}

	got := r.Rerank(context.Background(), "q", results, 0, 0.5)

	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestRerank_BatchesScoringCallsByBatchSize(t *testing.T) {
	encoder := &batchRecordingCrossEncoder{}
	r := NewReranker(encoder, 2, nil)
	results := []SearchResult{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	got := r.Rerank(context.Background(), "q", results, 0, 0)

	require.Len(t, got, 3)
	assert.Equal(t, [][]string{{"", ""}, {""}}, encoder.batches)
}

type batchRecordingCrossEncoder struct {
	batches [][]string
}

func (b *batchRecordingCrossEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	b.batches = append(b.batches, append([]string(nil), passages...))
	scores := make([]float64, len(passages))
	for i := range passages {
		scores[i] = float64(i)
	}
	return scores, nil
}
