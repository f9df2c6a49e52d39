package ragcore

import (
	"github.com/modularmind/ragcore/adapters"
	"github.com/modularmind/ragcore/internal/optimize"
)

// OptimizerStrategy selects how the Context Optimizer assembles a
// ContextWindow from scored results.
type OptimizerStrategy string

const (
	OptimizeGreedy    OptimizerStrategy = OptimizerStrategy(optimize.StrategyGreedy)
	OptimizeRelevance OptimizerStrategy = OptimizerStrategy(optimize.StrategyRelevance)
	OptimizeCoverage  OptimizerStrategy = OptimizerStrategy(optimize.StrategyCoverage)
	OptimizeDiverse   OptimizerStrategy = OptimizerStrategy(optimize.StrategyDiverse)
)

// ContextOptimizer assembles a token-budgeted ContextWindow out of
// scored SearchResults, deduplicating near-identical passages and
// respecting per-document caps and diversity tradeoffs.
type ContextOptimizer struct {
	tokenizer adapters.Tokenizer
	params    optimize.Params
}

// NewContextOptimizer constructs a ContextOptimizer. tokenizer may be
// nil, in which case token counts fall back to adapters.EstimateTokenCount.
func NewContextOptimizer(tokenizer adapters.Tokenizer, cfg ContextOptimizerConfig) *ContextOptimizer {
	countFn := adapters.EstimateTokenCount
	if tokenizer != nil {
		countFn = tokenizer.Count
	}
	return &ContextOptimizer{
		tokenizer: tokenizer,
		params: optimize.Params{
			MaxTokens:        cfg.MaxTokens,
			MaxChunks:        cfg.MaxChunks,
			OverlapThreshold: cfg.OverlapThreshold,
			DiversityWeight:  cfg.DiversityWeight,
			MaxSameDoc:       cfg.MaxSameDoc,
			PreserveOrder:    cfg.PreserveOrder,
			CountTokens:      countFn,
		},
	}
}

// ContextOptimizerConfig mirrors the optimizer-relevant fields of
// config.Config, so a ContextOptimizer can be built without a full
// config.Config.
type ContextOptimizerConfig struct {
	MaxTokens        int
	MaxChunks        int
	OverlapThreshold float64
	DiversityWeight  float64
	MaxSameDoc       int
	PreserveOrder    bool
}

// Optimize selects and orders results into a ContextWindow under the
// given strategy, falling back to greedy for an unrecognized value.
func (c *ContextOptimizer) Optimize(query string, results []SearchResult, strategy OptimizerStrategy) ContextWindow {
	chunks := make([]optimize.Chunk, len(results))
	for i, r := range results {
		chunks[i] = optimize.Chunk{
			ID:          r.ID,
			Text:        r.Text,
			Score:       r.Score,
			Metadata:    r.Metadata,
			Order:       i,
			SourceDocID: stringMeta(r.Metadata, "document_id"),
		}
	}

	selected := optimize.Optimize(chunks, query, optimize.Strategy(strategy), c.params)
	return c.buildWindow(selected)
}

func (c *ContextOptimizer) buildWindow(selected []optimize.Chunk) ContextWindow {
	window := ContextWindow{
		Passages: make([]SearchResult, 0, len(selected)),
		Sources:  make(map[string]SourceInfo),
	}

	for _, chunk := range selected {
		result := SearchResult{
			ID:       chunk.ID,
			Text:     chunk.Text,
			Score:    chunk.Score,
			Metadata: chunk.Metadata,
		}
		window.Passages = append(window.Passages, result)
		window.TotalChars += len(chunk.Text)
		window.TotalTokens += c.params.CountTokens(chunk.Text)

		docID := chunk.SourceDocID
		if docID == "" {
			docID = chunk.ID
		}
		src, ok := window.Sources[docID]
		if !ok {
			src = SourceInfo{
				ID:          docID,
				Title:       stringMeta(chunk.Metadata, "title"),
				URL:         stringMeta(chunk.Metadata, "url"),
				ContentType: stringMeta(chunk.Metadata, "content_type"),
			}
		}
		src.ChunkCount++
		window.Sources[docID] = src
	}

	return window
}
