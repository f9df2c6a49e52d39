package ragcore

import (
	"github.com/modularmind/ragcore/adapters"
	"github.com/modularmind/ragcore/config"
	"github.com/modularmind/ragcore/internal/bm25"
)

// pipelineConfig accumulates everything an Option can set before New
// assembles the Pipeline's stages. Unlike the per-field RetrieverConfig
// struct it's built from, it's unexported: callers only ever see
// PipelineOption and the constructed Pipeline.
type pipelineConfig struct {
	cfg               *config.Config
	bm25Index         *bm25.Index
	vectorStore       adapters.VectorStore
	embeddings        adapters.Embeddings
	passageStore      adapters.PassageStore
	crossEncoder      adapters.CrossEncoder
	tokenizer         adapters.Tokenizer
	llm               adapters.LLM
	collection        string
	logger            Logger
	analyzerConfig    AnalyzerConfig
	attributionConfig AttributionConfig
	optimizerStrategy OptimizerStrategy
}

func defaultPipelineConfig() *pipelineConfig {
	return &pipelineConfig{
		cfg:               config.Default(),
		collection:        "default",
		analyzerConfig:    DefaultAnalyzerConfig(),
		attributionConfig: DefaultAttributionConfig(),
		optimizerStrategy: OptimizeGreedy,
	}
}

// PipelineOption configures a Pipeline using the functional options
// pattern, allowing the core to be wired up with only the adapters a
// given deployment actually has.
type PipelineOption func(*pipelineConfig)

// WithConfig overrides the pipeline's tunables. Without it, New uses
// config.Default().
func WithConfig(cfg *config.Config) PipelineOption {
	return func(p *pipelineConfig) { p.cfg = cfg }
}

// WithBM25Index supplies a pre-populated sparse index. Without it, New
// builds an empty one from cfg.BM25K1/BM25B.
func WithBM25Index(idx *bm25.Index) PipelineOption {
	return func(p *pipelineConfig) { p.bm25Index = idx }
}

// WithVectorStore supplies the dense retrieval backend. Without it,
// dense and hybrid retrieval silently degrade to sparse-only.
func WithVectorStore(vs adapters.VectorStore) PipelineOption {
	return func(p *pipelineConfig) { p.vectorStore = vs }
}

// WithEmbeddings supplies the query embedding backend used by dense
// and hybrid retrieval.
func WithEmbeddings(e adapters.Embeddings) PipelineOption {
	return func(p *pipelineConfig) { p.embeddings = e }
}

// WithPassageStore supplies passage text/metadata lookup for results
// that only carry an id (vector-only matches).
func WithPassageStore(ps adapters.PassageStore) PipelineOption {
	return func(p *pipelineConfig) { p.passageStore = ps }
}

// WithCrossEncoder enables reranking. Without it, RerankerEnabled is
// a no-op regardless of config.
func WithCrossEncoder(ce adapters.CrossEncoder) PipelineOption {
	return func(p *pipelineConfig) { p.crossEncoder = ce }
}

// WithTokenizer supplies exact token counting for the context
// optimizer. Without it, optimization falls back to a character-based
// estimate.
func WithTokenizer(tok adapters.Tokenizer) PipelineOption {
	return func(p *pipelineConfig) { p.tokenizer = tok }
}

// WithLLM supplies the language model used by query analysis/expansion
// and by auto-detected attribution. Without it, both fall back to
// their heuristic/explicit-marker behavior.
func WithLLM(llm adapters.LLM) PipelineOption {
	return func(p *pipelineConfig) { p.llm = llm }
}

// WithCollection sets the vector store collection name queried by
// dense and hybrid retrieval. Defaults to "default".
func WithCollection(name string) PipelineOption {
	return func(p *pipelineConfig) { p.collection = name }
}

// WithLogger replaces the package's GlobalLogger. Without it, the
// pipeline logs through the default stderr logger at LogLevelInfo.
func WithLogger(l Logger) PipelineOption {
	return func(p *pipelineConfig) { p.logger = l }
}

// WithAnalyzerConfig overrides the query analyzer's heuristic tuning.
func WithAnalyzerConfig(c AnalyzerConfig) PipelineOption {
	return func(p *pipelineConfig) { p.analyzerConfig = c }
}

// WithAttributionConfig overrides the attribution enhancer's citation
// rendering.
func WithAttributionConfig(c AttributionConfig) PipelineOption {
	return func(p *pipelineConfig) { p.attributionConfig = c }
}

// WithOptimizerStrategy sets the context optimizer's default selection
// strategy, overridable per call via OptimizeContextWithStrategy.
func WithOptimizerStrategy(s OptimizerStrategy) PipelineOption {
	return func(p *pipelineConfig) { p.optimizerStrategy = s }
}
