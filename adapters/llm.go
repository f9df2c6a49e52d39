package adapters

import (
	"context"
	"time"

	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM as an LLM adapter, used by the query
// analyzer for classification/rewrite prompts and by the attribution
// enhancer's auto-detect mode.
type GollmAdapter struct {
	llm gollm.LLM
}

// NewGollmAdapter constructs an LLM backed by the given provider and
// model through gollm, with the retry behavior raggo's own retriever
// construction uses.
func NewGollmAdapter(provider, model, apiKey string) (*GollmAdapter, error) {
	llm, err := gollm.NewLLM(
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetAPIKey(apiKey),
		gollm.SetMaxTokens(512),
		gollm.SetMaxRetries(3),
		gollm.SetRetryDelay(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &GollmAdapter{llm: llm}, nil
}

// NewGollmAdapterFromLLM wraps an already-constructed gollm.LLM, for
// callers that want to share one instance across adapters.
func NewGollmAdapterFromLLM(llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{llm: llm}
}

// Generate implements LLM.
func (a *GollmAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	return a.llm.Generate(ctx, gollm.NewPrompt(prompt))
}
