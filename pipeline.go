package ragcore

import (
	"context"
	"sync"
	"time"

	"github.com/modularmind/ragcore/adapters"
	"github.com/modularmind/ragcore/config"
	"github.com/modularmind/ragcore/internal/bm25"
	"github.com/modularmind/ragcore/internal/cache"
	"github.com/modularmind/ragcore/internal/metrics"
)

// Pipeline is the assembled retrieval core: query analysis, method
// selection, hybrid/sparse/dense retrieval, reranking, context
// optimization, and attribution, wired to whichever adapters a
// deployment provides and degrading gracefully around the ones it
// doesn't.
type Pipeline struct {
	cfg *config.Config

	bm25Index    *bm25.Index
	vectorStore  adapters.VectorStore
	embeddings   adapters.Embeddings
	passageStore adapters.PassageStore
	collection   string

	analyzer    *Analyzer
	hybrid      *HybridRetriever
	reranker    *Reranker
	optimizer   *ContextOptimizer
	attribution *AttributionEnhancer

	resultCache       *cache.Cache[RetrievalEnvelope]
	metrics           *metrics.Recorder
	optimizerStrategy OptimizerStrategy

	rebuildMu sync.Mutex
}

// New assembles a Pipeline from the given options. A Pipeline is safe
// to use with zero adapters configured: every stage beyond sparse BM25
// retrieval degrades to a pass-through rather than failing.
func New(opts ...PipelineOption) (*Pipeline, error) {
	pc := defaultPipelineConfig()
	for _, opt := range opts {
		opt(pc)
	}

	if pc.logger != nil {
		GlobalLogger = pc.logger
	}

	if pc.bm25Index == nil {
		pc.bm25Index = bm25.New(bm25.Params{K1: pc.cfg.BM25K1, B: pc.cfg.BM25B})
	}

	recorder := metrics.New()

	p := &Pipeline{
		cfg:          pc.cfg,
		bm25Index:    pc.bm25Index,
		vectorStore:  pc.vectorStore,
		embeddings:   pc.embeddings,
		passageStore: pc.passageStore,
		collection:   pc.collection,

		analyzer:    NewAnalyzer(pc.llm, pc.analyzerConfig),
		hybrid:      NewHybridRetriever(pc.bm25Index, pc.vectorStore, pc.embeddings, pc.collection, pc.cfg.HybridAlpha),
		reranker:    NewReranker(pc.crossEncoder, pc.cfg.RerankerBatchSize, recorder),
		attribution: NewAttributionEnhancer(pc.llm, pc.attributionConfig),

		metrics:           recorder,
		optimizerStrategy: pc.optimizerStrategy,
	}

	p.optimizer = NewContextOptimizer(pc.tokenizer, ContextOptimizerConfig{
		MaxTokens:        pc.cfg.OptimizerMaxTokens,
		MaxChunks:        pc.cfg.OptimizerMaxChunks,
		OverlapThreshold: pc.cfg.OptimizerOverlapThreshold,
		DiversityWeight:  pc.cfg.OptimizerDiversityWeight,
		MaxSameDoc:       pc.cfg.OptimizerMaxSameDoc,
	})

	if pc.cfg.CacheEnabled {
		p.resultCache = cache.New[RetrievalEnvelope](pc.cfg.CacheMaxEntries, pc.cfg.CacheTTL)
	}

	return p, nil
}

// RetrieveOptions tunes a single Retrieve call beyond the Pipeline's
// static configuration.
type RetrieveOptions struct {
	// Language is passed to the query analyzer's expansion prompt and
	// is part of the cache key. Defaults to the analyzer's configured
	// default language. The heuristic classifier matches interrogative
	// words of every configured language regardless of it.
	Language string
	// Method overrides automatic method selection. Empty or an
	// unrecognized value means "let the analyzer decide".
	Method RetrievalMethod
	// SkipCache bypasses both cache lookup and cache population for
	// this call.
	SkipCache bool
}

// Retrieve runs the full retrieval pipeline: cache lookup, query
// analysis, method selection, first-stage retrieval on the rewritten
// query, a min-results fallback to Hybrid, a second pass over the
// expanded query's variants unioned by id, passage enrichment, and
// reranking. The returned error is non-nil only for KindValidation
// (bad input) or KindDeadlineExceeded (the per-request deadline fired
// before a usable result existed); every other adapter failure
// degrades in place and is reflected only in logs and metrics.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int, filters Filters, opts RetrieveOptions) (RetrievalEnvelope, error) {
	if query == "" {
		return RetrievalEnvelope{}, newError(KindValidation, "query must not be empty")
	}
	if topK <= 0 {
		topK = p.cfg.FinalK
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestDeadline)
	defer cancel()

	var cacheKey string
	if p.resultCache != nil && !opts.SkipCache {
		cacheKey = cache.Key{Query: query, TopK: topK, Filters: map[string]any(filters), Language: opts.Language}.Hash()
		if cached, ok := p.resultCache.Get(cacheKey); ok {
			p.metrics.IncCacheHit()
			cached.CacheHit = true
			return cached, nil
		}
		p.metrics.IncCacheMiss()
	}

	start := now()
	timings := StageTimings{PerStageMS: make(map[string]float64)}

	analysis := p.analyzer.Analyze(ctx, query, opts.Language)
	timings.PerStageMS["analyze"] = elapsedMS(start)

	method := opts.Method
	if method == "" || !isValidMethod(method) {
		method = selectMethod(analysis)
	}

	retrievalQuery := analysis.Rewritten
	if retrievalQuery == "" {
		retrievalQuery = query
	}

	firstStageK := p.cfg.FirstStageK
	if firstStageK < topK {
		firstStageK = topK
	}

	stageStart := now()
	results, err := p.retrieveByMethod(ctx, method, retrievalQuery, firstStageK, filters)
	if err != nil {
		if ctx.Err() != nil {
			p.metrics.IncDeadlineExceeded()
			return RetrievalEnvelope{}, newError(KindDeadlineExceeded, "retrieval deadline exceeded: %v", err)
		}
		return RetrievalEnvelope{}, wrapInternal(err, "retrieval")
	}

	if p.cfg.MinResults > 0 && len(results) < p.cfg.MinResults && method != MethodHybrid {
		GlobalLogger.Warn("retrieval returned fewer than min_results, falling back to hybrid",
			"method", method, "count", len(results), "min_results", p.cfg.MinResults)
		fallback, ferr := p.hybrid.Search(ctx, query, firstStageK, filters)
		if ferr == nil {
			results = fallback
			method = MethodHybrid
		}
	}

	results = p.retrieveVariants(ctx, analysis, method, filters, results)
	timings.PerStageMS["retrieve"] = elapsedMS(stageStart)

	stageStart = now()
	results = p.enrichMissingText(ctx, results)
	timings.PerStageMS["enrich"] = elapsedMS(stageStart)

	if p.cfg.RerankerEnabled {
		stageStart = now()
		results = p.reranker.Rerank(ctx, query, results, topK*2, 0)
		timings.PerStageMS["rerank"] = elapsedMS(stageStart)
	}

	if len(results) > topK {
		results = results[:topK]
	}

	for i := range results {
		results[i] = results[i].withMetadata("retrieval_pipeline", "multi_stage")
		results[i] = results[i].withMetadata("original_query", query)
		results[i] = results[i].withMetadata("rewritten_query", analysis.Rewritten)
	}

	timings.TotalMS = elapsedMS(start)

	envelope := RetrievalEnvelope{
		Results:         results,
		RetrievalMethod: method,
		QueryAnalysis:   analysis,
		Timings:         timings,
	}

	if cacheKey != "" {
		p.resultCache.Set(cacheKey, envelope)
	}

	return envelope, nil
}

func (p *Pipeline) retrieveByMethod(ctx context.Context, method RetrievalMethod, query string, topK int, filters Filters) ([]SearchResult, error) {
	switch method {
	case MethodBM25:
		raw := p.bm25Index.Search(ctx, query, topK, bm25.Filters(filters))
		out := make([]SearchResult, len(raw))
		for i, r := range raw {
			out[i] = SearchResult{ID: r.ID, Text: r.Text, Score: r.Score, Metadata: r.Metadata}.withMetadata("retrieval_method", string(MethodBM25))
		}
		return out, nil
	case MethodVector:
		return p.searchVector(ctx, query, topK, filters)
	default:
		return p.hybrid.Search(ctx, query, topK, filters)
	}
}

// retrieveVariants runs a second, cheap retrieval pass over each
// expanded query variant beyond the original, pulling only its
// top-scoring entry, and unions any new ids into base by id.
func (p *Pipeline) retrieveVariants(ctx context.Context, analysis QueryAnalysis, method RetrievalMethod, filters Filters, base []SearchResult) []SearchResult {
	if len(analysis.Variants) <= 1 {
		return base
	}

	seen := make(map[string]struct{}, len(base))
	for _, r := range base {
		seen[r.ID] = struct{}{}
	}

	out := base
	for _, variant := range analysis.Variants[1:] {
		top, err := p.retrieveByMethod(ctx, method, variant, 1, filters)
		if err != nil || len(top) == 0 {
			continue
		}
		if _, ok := seen[top[0].ID]; ok {
			continue
		}
		seen[top[0].ID] = struct{}{}
		out = append(out, top[0])
	}
	return out
}

func (p *Pipeline) searchVector(ctx context.Context, query string, topK int, filters Filters) ([]SearchResult, error) {
	if p.vectorStore == nil || p.embeddings == nil {
		GlobalLogger.Warn("vector retrieval requested but no vector store/embeddings configured, returning no results")
		return nil, nil
	}
	vecs, err := p.embeddings.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		GlobalLogger.Warn("query embedding failed, returning no vector results", "error", err)
		return nil, nil
	}
	matches, err := p.vectorStore.Search(ctx, p.collection, vecs[0], topK, map[string]any(filters))
	if err != nil {
		GlobalLogger.Warn("vector search failed, returning no vector results", "error", err)
		return nil, nil
	}
	out := make([]SearchResult, len(matches))
	for i, m := range matches {
		out[i] = SearchResult{ID: m.ID, Score: m.Score, Metadata: m.Metadata}.withMetadata("retrieval_method", string(MethodVector))
	}
	return out, nil
}

// enrichMissingText fetches text for results that arrived with only an
// id and score (pure vector-store matches), via the configured
// PassageStore. Results keep their existing text when present and are
// left untouched when no PassageStore is configured.
func (p *Pipeline) enrichMissingText(ctx context.Context, results []SearchResult) []SearchResult {
	if p.passageStore == nil {
		return results
	}

	var missingIDs []string
	for _, r := range results {
		if r.Text == "" {
			missingIDs = append(missingIDs, r.ID)
		}
	}
	if len(missingIDs) == 0 {
		return results
	}

	fetched, err := p.passageStore.Get(ctx, missingIDs)
	if err != nil {
		GlobalLogger.Warn("passage enrichment failed, leaving ids text-less", "error", err)
		return results
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		if r.Text == "" {
			if sp, ok := fetched[r.ID]; ok {
				r.Text = sp.Text
				if r.Metadata == nil {
					r.Metadata = sp.Metadata
				}
			}
		}
		out[i] = r
	}
	return out
}

// Rerank reorders candidates against query with the pipeline's
// cross-encoder reranker; topK and threshold behave as in
// Reranker.Rerank.
func (p *Pipeline) Rerank(ctx context.Context, query string, candidates []SearchResult, topK int, threshold float64) []SearchResult {
	return p.reranker.Rerank(ctx, query, candidates, topK, threshold)
}

// OptimizeContext assembles a token-budgeted ContextWindow from
// results using the pipeline's configured strategy.
func (p *Pipeline) OptimizeContext(query string, results []SearchResult) ContextWindow {
	return p.optimizer.Optimize(query, results, p.optimizerStrategy)
}

// OptimizeContextWithStrategy is OptimizeContext with a per-call
// strategy override.
func (p *Pipeline) OptimizeContextWithStrategy(query string, results []SearchResult, strategy OptimizerStrategy) ContextWindow {
	return p.optimizer.Optimize(query, results, strategy)
}

// Attribute ties sentences of response back to the source passages
// that grounded it.
func (p *Pipeline) Attribute(ctx context.Context, response string, sources []SearchResult, query string, autoDetect bool) AttributionResult {
	return p.attribution.Enhance(ctx, response, sources, query, autoDetect)
}

// MetricsSnapshot returns a point-in-time read of the pipeline's
// operational counters.
func (p *Pipeline) MetricsSnapshot() metrics.Snapshot {
	return p.metrics.Snapshot()
}

// RebuildHandle represents an in-flight asynchronous BM25 rebuild.
type RebuildHandle struct {
	done chan error
}

// Wait blocks until the rebuild finishes or ctx is canceled, whichever
// comes first.
func (h *RebuildHandle) Wait(ctx context.Context) error {
	select {
	case err := <-h.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RebuildBM25 publishes the sparse index's currently staged documents
// as a new immutable snapshot on a background goroutine, so a caller
// ingesting a large batch doesn't block on Search's callers while the
// new snapshot is built.
func (p *Pipeline) RebuildBM25() *RebuildHandle {
	h := &RebuildHandle{done: make(chan error, 1)}
	go func() {
		p.rebuildMu.Lock()
		defer p.rebuildMu.Unlock()
		p.bm25Index.Rebuild(context.Background())
		h.done <- nil
	}()
	return h
}

func elapsedMS(start time.Time) float64 {
	return float64(now().Sub(start)) / float64(time.Millisecond)
}
