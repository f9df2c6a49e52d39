package ragcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modularmind/ragcore/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RerankerEnabled = false
	cfg.RequestDeadline = 5 * time.Second
	return cfg
}

func TestPipelineRetrieve_EmptyQueryIsValidationError(t *testing.T) {
	p, err := New(WithConfig(testConfig()))
	require.NoError(t, err)

	_, err = p.Retrieve(context.Background(), "", 5, nil, RetrieveOptions{})

	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindValidation, rerr.Kind)
}

func TestPipelineRetrieve_BM25OnlySucceedsWithNoOtherAdapters(t *testing.T) {
	cfg := testConfig()
	cfg.MinResults = 0
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)

	idx := p.bm25Index
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul rose sharply", nil)
	idx.Rebuild(ctx)

	env, err := p.Retrieve(ctx, "car price istanbul", 5, nil, RetrieveOptions{Method: MethodBM25})

	require.NoError(t, err)
	require.Len(t, env.Results, 1)
	assert.Equal(t, "p1", env.Results[0].ID)
	assert.Equal(t, MethodBM25, env.RetrievalMethod)
}

func TestPipelineRetrieve_InvalidMethodOverrideFallsBackToSelector(t *testing.T) {
	cfg := testConfig()
	cfg.MinResults = 0
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)

	idx := p.bm25Index
	ctx := context.Background()
	idx.Add(ctx, "p1", "keyword stuffed query text", nil)
	idx.Rebuild(ctx)

	env, err := p.Retrieve(ctx, "keyword stuffed", 5, nil, RetrieveOptions{Method: RetrievalMethod("bogus")})

	require.NoError(t, err)
	assert.Equal(t, MethodBM25, env.RetrievalMethod)
}

func TestPipelineRetrieve_CachesSecondIdenticalCall(t *testing.T) {
	cfg := testConfig()
	cfg.CacheEnabled = true
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)

	idx := p.bm25Index
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul", nil)
	idx.Rebuild(ctx)

	first, err := p.Retrieve(ctx, "car price istanbul", 5, nil, RetrieveOptions{Method: MethodBM25})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := p.Retrieve(ctx, "car price istanbul", 5, nil, RetrieveOptions{Method: MethodBM25})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
}

func TestPipelineRetrieve_SkipCacheBypassesCache(t *testing.T) {
	cfg := testConfig()
	cfg.CacheEnabled = true
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)

	idx := p.bm25Index
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul", nil)
	idx.Rebuild(ctx)

	_, err = p.Retrieve(ctx, "car price istanbul", 5, nil, RetrieveOptions{Method: MethodBM25, SkipCache: true})
	require.NoError(t, err)

	second, err := p.Retrieve(ctx, "car price istanbul", 5, nil, RetrieveOptions{Method: MethodBM25, SkipCache: true})
	require.NoError(t, err)
	assert.False(t, second.CacheHit)
}

func TestPipelineRetrieve_TopKDefaultsToFinalK(t *testing.T) {
	cfg := testConfig()
	cfg.FinalK = 1
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)

	idx := p.bm25Index
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul high", nil)
	idx.Add(ctx, "p2", "car price istanbul low", nil)
	idx.Rebuild(ctx)

	env, err := p.Retrieve(ctx, "car price istanbul", 0, nil, RetrieveOptions{Method: MethodBM25})

	require.NoError(t, err)
	assert.Len(t, env.Results, 1)
}

func TestPipelineRetrieve_FewerThanMinResultsFallsBackToHybrid(t *testing.T) {
	cfg := testConfig()
	cfg.MinResults = 3
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)

	idx := p.bm25Index
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul", nil)
	idx.Rebuild(ctx)

	env, err := p.Retrieve(ctx, "car price istanbul", 5, nil, RetrieveOptions{Method: MethodBM25})

	require.NoError(t, err)
	assert.Equal(t, MethodHybrid, env.RetrievalMethod)
}

func TestPipelineRetrieve_MeetingMinResultsKeepsChosenMethod(t *testing.T) {
	cfg := testConfig()
	cfg.MinResults = 3
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)

	idx := p.bm25Index
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul one", nil)
	idx.Add(ctx, "p2", "car price istanbul two", nil)
	idx.Add(ctx, "p3", "car price istanbul three", nil)
	idx.Rebuild(ctx)

	env, err := p.Retrieve(ctx, "car price istanbul", 5, nil, RetrieveOptions{Method: MethodBM25})

	require.NoError(t, err)
	assert.Equal(t, MethodBM25, env.RetrievalMethod)
	assert.Len(t, env.Results, 3)
}

func TestPipelineRetrieve_AnnotatesResultsWithPipelineMetadata(t *testing.T) {
	cfg := testConfig()
	cfg.MinResults = 0
	p, err := New(WithConfig(cfg))
	require.NoError(t, err)

	idx := p.bm25Index
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul", nil)
	idx.Rebuild(ctx)

	env, err := p.Retrieve(ctx, "car price istanbul", 5, nil, RetrieveOptions{Method: MethodBM25})

	require.NoError(t, err)
	require.Len(t, env.Results, 1)
	assert.Equal(t, "multi_stage", env.Results[0].Metadata["retrieval_pipeline"])
	assert.Equal(t, "car price istanbul", env.Results[0].Metadata["original_query"])
	assert.Equal(t, "car price istanbul", env.Results[0].Metadata["rewritten_query"])
}

func TestPipelineRetrieve_UnionsVariantTopEntryWithFirstStageResults(t *testing.T) {
	cfg := testConfig()
	cfg.MinResults = 0
	llm := &stubAnalyzerLLM{responses: []string{
		`{"query_type": "keyword", "reasoning": "short"}`,
		`{"expanded_queries": ["alternate phrase"], "rewritten_query": "car price istanbul"}`,
	}}
	p, err := New(WithConfig(cfg), WithLLM(llm))
	require.NoError(t, err)

	idx := p.bm25Index
	ctx := context.Background()
	idx.Add(ctx, "p1", "car price istanbul one", nil)
	idx.Add(ctx, "p2", "alternate phrase two", nil)
	idx.Rebuild(ctx)

	env, err := p.Retrieve(ctx, "car price istanbul", 5, nil, RetrieveOptions{})

	require.NoError(t, err)
	ids := make([]string, len(env.Results))
	for i, r := range env.Results {
		ids[i] = r.ID
	}
	assert.Contains(t, ids, "p1")
	assert.Contains(t, ids, "p2")
}

func TestRebuildBM25_WaitReturnsAfterRebuildCompletes(t *testing.T) {
	p, err := New(WithConfig(testConfig()))
	require.NoError(t, err)

	ctx := context.Background()
	p.bm25Index.Add(ctx, "p1", "car price istanbul", nil)

	handle := p.RebuildBM25()
	require.NoError(t, handle.Wait(ctx))

	results := p.bm25Index.Search(ctx, "car price", 10, nil)
	assert.Len(t, results, 1)
}
