// Package adapters defines the narrow interfaces the retrieval core
// uses to talk to everything outside of it — language models,
// embedding providers, vector stores, cross-encoders, tokenizers, and
// passage storage — plus concrete implementations of each.
//
// Every adapter method takes a context.Context and returns a plain
// error; the core classifies adapter failures itself rather than
// relying on adapters to return a typed error. An adapter that is
// down or slow should fail fast rather than hang: call sites bound
// adapter calls only by the request's context, and no separate
// per-adapter deadline is applied.
package adapters

import "context"

// LLM generates free-form text completions, used by the query
// analyzer for classification/rewrite and by the attribution enhancer
// for auto-detecting sentence-to-source mappings.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embeddings converts text into dense vector representations.
type Embeddings interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// VectorMatch is one result of a vector store similarity search.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// VectorStore performs dense nearest-neighbor search over passage
// embeddings. The core never constructs embeddings for storage itself;
// that happens upstream of ingestion, which is out of scope here.
type VectorStore interface {
	Search(ctx context.Context, collection string, vector []float32, topK int, filters map[string]any) ([]VectorMatch, error)
}

// CrossEncoder scores (query, passage) pairs jointly, more expensive
// but more accurate than independently-embedded similarity.
type CrossEncoder interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Tokenizer counts tokens the way a downstream generator's model would,
// so the context optimizer can budget accurately.
type Tokenizer interface {
	Count(text string) int
}

// PassageStore fetches passage content and metadata by id, used when a
// retriever only has ids (e.g. a vector store that stores no payload).
type PassageStore interface {
	Get(ctx context.Context, ids []string) (map[string]StoredPassage, error)
}

// StoredPassage is the content a PassageStore returns for one id.
type StoredPassage struct {
	Text     string
	Metadata map[string]any
}
