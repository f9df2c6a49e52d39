package ragcore

import (
	"context"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/modularmind/ragcore/adapters"
)

// AnalyzerConfig tunes the Query Analyzer / Expander's heuristic
// fallback and LLM prompting.
type AnalyzerConfig struct {
	// InterrogativeWords lists question-leading words per language,
	// used by the heuristic classifier when no LLM is configured or
	// the LLM call fails.
	InterrogativeWords map[string][]string
	// DefaultLanguage is used when the caller passes no language.
	DefaultLanguage string
}

// DefaultAnalyzerConfig seeds English and Turkish interrogative words.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		DefaultLanguage: "en",
		InterrogativeWords: map[string][]string{
			"en": {"what", "who", "where", "when", "why", "how", "is", "are", "can", "could", "would", "should", "do", "does"},
			"tr": {"ne", "kim", "nerede", "nerde", "neden", "niçin", "niye", "nasıl", "mi", "mı", "mu", "mü", "kaç"},
		},
	}
}

// Analyzer classifies a query as keyword / natural-language / hybrid
// and produces a rewritten form plus variants for downstream
// expansion-aware retrieval. When llm is nil, or the LLM call fails or
// returns an unparseable response, it falls back to the heuristic
// classifier and returns the original query untouched as its only
// variant — degradation, never failure.
type Analyzer struct {
	llm    adapters.LLM
	config AnalyzerConfig
}

// NewAnalyzer builds an Analyzer. llm may be nil, in which case
// Analyze always uses the heuristic classifier.
func NewAnalyzer(llm adapters.LLM, config AnalyzerConfig) *Analyzer {
	return &Analyzer{llm: llm, config: config}
}

type llmQueryAnalysis struct {
	QueryType string `json:"query_type"`
	Reasoning string `json:"reasoning"`
}

type llmQueryExpansion struct {
	ExpandedQueries []string `json:"expanded_queries"`
	RewrittenQuery  string   `json:"rewritten_query"`
}

// Analyze classifies query and, when an LLM adapter is configured,
// asks it for a rewritten form and a handful of expanded variants.
func (a *Analyzer) Analyze(ctx context.Context, query, language string) QueryAnalysis {
	if language == "" {
		language = a.config.DefaultLanguage
	}

	queryType, reasoning := a.classify(ctx, query)

	result := QueryAnalysis{
		Type:      queryType,
		Rewritten: query,
		Variants:  []string{query},
		Reasoning: reasoning,
	}

	if a.llm == nil {
		return result
	}

	expansion, err := a.expand(ctx, query, queryType, language)
	if err != nil {
		GlobalLogger.Warn("query expansion failed, using original query", "error", err)
		return result
	}

	result.Rewritten = expansion.RewrittenQuery
	result.Variants = dedupeVariants(query, expansion.ExpandedQueries)
	return result
}

func (a *Analyzer) classify(ctx context.Context, query string) (QueryType, string) {
	if a.llm != nil {
		prompt := queryAnalysisPrompt(query)
		raw, err := a.llm.Generate(ctx, prompt)
		if err == nil {
			var parsed llmQueryAnalysis
			if jsonErr := json.Unmarshal([]byte(extractJSON(raw)), &parsed); jsonErr == nil && parsed.QueryType != "" {
				return QueryType(parsed.QueryType), parsed.Reasoning
			}
		}
		GlobalLogger.Warn("LLM query classification failed, using heuristic", "error", err)
	}
	return a.heuristicType(query), "determined from query structure"
}

// heuristicType guesses a query's type from its surface form: a
// trailing question mark or a leading interrogative word (in any
// configured language) means natural language; four or more words
// where any word after the first has mixed/upper case also means
// natural language; anything else is a keyword query.
func (a *Analyzer) heuristicType(query string) QueryType {
	trimmed := strings.TrimSpace(query)
	if strings.HasSuffix(trimmed, "?") {
		return QueryNaturalLang
	}

	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return QueryKeyword
	}

	first := strings.ToLower(strings.TrimFunc(fields[0], func(r rune) bool { return r == '\'' }))
	for _, words := range a.config.InterrogativeWords {
		for _, w := range words {
			if first == w {
				return QueryNaturalLang
			}
		}
	}

	if len(fields) >= 4 && hasMixedCase(fields[1:]) {
		return QueryNaturalLang
	}
	return QueryKeyword
}

// hasMixedCase reports whether any word does not start with a
// lowercase letter, mirroring the original expander's
// all(word[0].islower()) check.
func hasMixedCase(words []string) bool {
	for _, w := range words {
		r := []rune(w)
		if len(r) == 0 {
			continue
		}
		if !unicode.IsLower(r[0]) {
			return true
		}
	}
	return false
}

func (a *Analyzer) expand(ctx context.Context, query string, queryType QueryType, language string) (llmQueryExpansion, error) {
	prompt := queryExpansionPrompt(query, string(queryType), language)
	raw, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return llmQueryExpansion{}, err
	}
	var parsed llmQueryExpansion
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		return llmQueryExpansion{}, err
	}
	if parsed.RewrittenQuery == "" {
		parsed.RewrittenQuery = query
	}
	if len(parsed.ExpandedQueries) == 0 {
		parsed.ExpandedQueries = []string{query}
	}
	return parsed, nil
}

func dedupeVariants(original string, expanded []string) []string {
	seen := make(map[string]struct{}, len(expanded)+1)
	out := []string{original}
	seen[strings.ToLower(original)] = struct{}{}
	for _, q := range expanded {
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

// extractJSON trims an LLM response down to its outermost JSON object,
// tolerating a model that wraps its answer in prose or a code fence.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func queryAnalysisPrompt(query string) string {
	return "Analyze the following search query and determine its type:\n\n" +
		"Query: \"" + query + "\"\n\n" +
		"Determine if this is a:\n" +
		"1. Keyword query (just some terms without proper grammar)\n" +
		"2. Natural language query (proper grammatical question)\n" +
		"3. Hybrid query (mix of keywords and natural language)\n\n" +
		"Return a JSON object with \"query_type\" (one of \"keyword\", \"natural_language\", \"hybrid\") " +
		"and \"reasoning\" (a brief explanation). Only include the JSON object, nothing else."
}

func queryExpansionPrompt(query, queryType, language string) string {
	return "Generate expanded versions of the following search query by adding synonyms, related terms, and alternate phrasings.\n\n" +
		"Original query: \"" + query + "\"\n" +
		"Query type: " + queryType + "\n" +
		"Language: " + language + "\n\n" +
		"Return a JSON object with \"expanded_queries\" (3-5 strings) and \"rewritten_query\" " +
		"(the single best rephrasing). Only include the JSON object, nothing else."
}
