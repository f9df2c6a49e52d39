package ragcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func sampleSources() []SearchResult {
	return []SearchResult{
		{ID: "doc1", Text: "Istanbul traffic has worsened due to population growth.", Metadata: map[string]any{"title": "Traffic Report", "url": "https://example.com/traffic"}},
		{ID: "doc2", Text: "Car prices rose sharply in the last quarter.", Metadata: map[string]any{"title": "Market Update", "url": "https://example.com/market"}},
	}
}

func TestEnhance_NoSourcesPassesThrough(t *testing.T) {
	e := NewAttributionEnhancer(nil, DefaultAttributionConfig())
	got := e.Enhance(context.Background(), "Some response.", nil, "q", true)
	assert.Equal(t, "Some response.", got.Response)
	assert.Equal(t, "Some response.", got.Markdown)
	assert.Empty(t, got.Citations)
}

func TestEnhance_ExplicitCitationsWithoutLLM(t *testing.T) {
	e := NewAttributionEnhancer(nil, DefaultAttributionConfig())
	response := "Traffic has worsened in the city. [1] Car prices also rose. [2]"

	got := e.Enhance(context.Background(), response, sampleSources(), "q", true)

	require.Len(t, got.Citations, 2)
	assert.Equal(t, "doc1", got.Citations[0].SourceID)
	assert.Equal(t, "doc2", got.Citations[1].SourceID)
	assert.Contains(t, got.Markdown, "### Sources")
	assert.Contains(t, got.Markdown, "Traffic Report")
	assert.Contains(t, got.Markdown, "Market Update")
}

func TestEnhance_AutoDetectUsesLLMAndFiltersLowConfidence(t *testing.T) {
	llm := &stubLLM{response: `[
		{"text": "Traffic has worsened in the city.", "source_id": "doc1", "confidence": 0.9},
		{"text": "This part is unrelated.", "source_id": "doc2", "confidence": 0.2}
	]`}
	e := NewAttributionEnhancer(llm, DefaultAttributionConfig())
	response := "Traffic has worsened in the city. This part is unrelated."

	got := e.Enhance(context.Background(), response, sampleSources(), "what is happening", true)

	require.Len(t, got.Citations, 1)
	assert.Equal(t, "doc1", got.Citations[0].SourceID)
	assert.Equal(t, 1, got.Citations[0].ID)
}

func TestEnhance_AutoDetectKeepsExactlyMinConfidence(t *testing.T) {
	llm := &stubLLM{response: `[
		{"text": "Traffic has worsened in the city.", "source_id": "doc1", "confidence": 0.5}
	]`}
	e := NewAttributionEnhancer(llm, DefaultAttributionConfig())
	response := "Traffic has worsened in the city."

	got := e.Enhance(context.Background(), response, sampleSources(), "what is happening", true)

	require.Len(t, got.Citations, 1)
	assert.Equal(t, "doc1", got.Citations[0].SourceID)
}

func TestEnhance_LLMFailureDegradesToNoAttribution(t *testing.T) {
	llm := &stubLLM{err: assert.AnError}
	e := NewAttributionEnhancer(llm, DefaultAttributionConfig())
	response := "Some response with no markers."

	got := e.Enhance(context.Background(), response, sampleSources(), "q", true)

	assert.Empty(t, got.Citations)
	assert.Equal(t, response, got.Response)
	assert.Equal(t, response, got.Markdown)
}

func TestEnhance_SuperscriptStyleMarksCitation(t *testing.T) {
	cfg := DefaultAttributionConfig()
	cfg.CitationStyle = CitationSuperscript
	e := NewAttributionEnhancer(nil, cfg)
	response := "Traffic has worsened in the city. [1] End."

	got := e.Enhance(context.Background(), response, sampleSources(), "q", true)

	require.Len(t, got.Citations, 1)
	assert.Equal(t, "doc1", got.Citations[0].SourceID)
}

func TestExtractExplicitCitations_IgnoresOutOfRangeMarker(t *testing.T) {
	response := "Nothing here. [9]"
	out := extractExplicitCitations(response, sampleSources())
	assert.Empty(t, out)
}

func TestBuildSourceIndex_GroupsRepeatedCitationsByCountingChunks(t *testing.T) {
	citations := []Attribution{
		{ID: 1, SourceID: "doc1", Text: "a"},
		{ID: 2, SourceID: "doc1", Text: "b"},
		{ID: 3, SourceID: "doc2", Text: "c"},
	}
	index := buildSourceIndex(citations, sampleSources())
	require.Contains(t, index, "doc1")
	assert.Equal(t, 2, index["doc1"].ChunkCount)
	assert.Equal(t, 1, index["doc2"].ChunkCount)
}
