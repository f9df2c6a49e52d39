package ragcore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAnalyzerLLM struct {
	responses []string
	err       error
	calls     int
}

func (s *stubAnalyzerLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	r := s.responses[s.calls%len(s.responses)]
	s.calls++
	return r, nil
}

func TestAnalyze_HeuristicNoLLM_QuestionMarkIsNaturalLanguage(t *testing.T) {
	a := NewAnalyzer(nil, DefaultAnalyzerConfig())
	got := a.Analyze(context.Background(), "what is the capital of France?", "")
	assert.Equal(t, QueryNaturalLang, got.Type)
	assert.Equal(t, []string{"what is the capital of France?"}, got.Variants)
	assert.Equal(t, "what is the capital of France?", got.Rewritten)
}

func TestAnalyze_HeuristicNoLLM_LeadingInterrogativeWord(t *testing.T) {
	a := NewAnalyzer(nil, DefaultAnalyzerConfig())
	got := a.Analyze(context.Background(), "how does photosynthesis work", "")
	assert.Equal(t, QueryNaturalLang, got.Type)
}

func TestAnalyze_HeuristicNoLLM_ShortPhraseIsKeyword(t *testing.T) {
	a := NewAnalyzer(nil, DefaultAnalyzerConfig())
	got := a.Analyze(context.Background(), "car prices istanbul", "")
	assert.Equal(t, QueryKeyword, got.Type)
}

func TestAnalyze_HeuristicNoLLM_LongLowercasePhraseIsKeyword(t *testing.T) {
	a := NewAnalyzer(nil, DefaultAnalyzerConfig())
	got := a.Analyze(context.Background(), "electric vehicle subsidies europe trend", "")
	assert.Equal(t, QueryKeyword, got.Type)
}

func TestAnalyze_HeuristicNoLLM_LongMixedCasePhraseIsNaturalLanguage(t *testing.T) {
	a := NewAnalyzer(nil, DefaultAnalyzerConfig())
	got := a.Analyze(context.Background(), "electric vehicle Subsidies in Europe", "")
	assert.Equal(t, QueryNaturalLang, got.Type)
}

func TestAnalyze_EmptyQueryIsKeyword(t *testing.T) {
	a := NewAnalyzer(nil, DefaultAnalyzerConfig())
	got := a.Analyze(context.Background(), "", "")
	assert.Equal(t, QueryKeyword, got.Type)
}

func TestAnalyze_LLMClassifiesAndExpands(t *testing.T) {
	llm := &stubAnalyzerLLM{responses: []string{
		`{"query_type": "natural_language", "reasoning": "it's a question"}`,
		`{"expanded_queries": ["q1", "q2"], "rewritten_query": "rewritten"}`,
	}}
	a := NewAnalyzer(llm, DefaultAnalyzerConfig())

	got := a.Analyze(context.Background(), "original query", "en")

	assert.Equal(t, QueryNaturalLang, got.Type)
	assert.Equal(t, "rewritten", got.Rewritten)
	require.Len(t, got.Variants, 3)
	assert.Equal(t, "original query", got.Variants[0])
}

func TestAnalyze_LLMClassificationFailsFallsBackToHeuristic(t *testing.T) {
	llm := &stubAnalyzerLLM{err: errors.New("down")}
	a := NewAnalyzer(llm, DefaultAnalyzerConfig())

	got := a.Analyze(context.Background(), "what time is it?", "en")

	assert.Equal(t, QueryNaturalLang, got.Type)
	assert.Equal(t, "what time is it?", got.Rewritten)
	assert.Equal(t, []string{"what time is it?"}, got.Variants)
}

func TestAnalyze_LLMExpansionUnparseableFallsBackToOriginal(t *testing.T) {
	llm := &stubAnalyzerLLM{responses: []string{
		`{"query_type": "keyword", "reasoning": "short"}`,
		`not json at all`,
	}}
	a := NewAnalyzer(llm, DefaultAnalyzerConfig())

	got := a.Analyze(context.Background(), "car prices", "en")

	assert.Equal(t, QueryKeyword, got.Type)
	assert.Equal(t, "car prices", got.Rewritten)
	assert.Equal(t, []string{"car prices"}, got.Variants)
}

func TestDedupeVariants_CaseInsensitiveDedup(t *testing.T) {
	got := dedupeVariants("Car Prices", []string{"car prices", "Car Prices", "vehicle cost"})
	assert.Equal(t, []string{"Car Prices", "vehicle cost"}, got)
}

func TestExtractJSON_TrimsSurroundingProseAndFences(t *testing.T) {
	raw := "Here you go:\n```json\n{\"a\": 1}\n```"
	assert.Equal(t, `{"a": 1}`, extractJSON(raw))
}
