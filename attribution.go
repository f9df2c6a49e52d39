package ragcore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/modularmind/ragcore/adapters"
)

// CitationStyle controls how a citation marker is rendered inline.
type CitationStyle string

const (
	CitationNumbered    CitationStyle = "numbered"
	CitationSuperscript CitationStyle = "superscript"
	CitationAuthorDate  CitationStyle = "author-date"
)

// AttributionConfig tunes the Attribution Enhancer's citation rendering.
type AttributionConfig struct {
	CitationStyle  CitationStyle
	IncludeURLs    bool
	LinkCitations  bool
	MinConfidence  float64
	MaxAutoSources int
}

// DefaultAttributionConfig matches the numbered, linked-URL citation
// style used across the rest of this package's generated markdown.
func DefaultAttributionConfig() AttributionConfig {
	return AttributionConfig{
		CitationStyle:  CitationNumbered,
		IncludeURLs:    true,
		LinkCitations:  true,
		MinConfidence:  0.5,
		MaxAutoSources: 5,
	}
}

// AttributionEnhancer ties sentences of a generated response back to
// the source passages that grounded them, either by asking an LLM to
// map sentences to sources or by reading explicit [n] markers the
// generator already inserted.
type AttributionEnhancer struct {
	llm    adapters.LLM
	config AttributionConfig
}

// NewAttributionEnhancer builds an AttributionEnhancer. llm may be nil,
// in which case Enhance always uses explicit-citation extraction.
func NewAttributionEnhancer(llm adapters.LLM, config AttributionConfig) *AttributionEnhancer {
	return &AttributionEnhancer{llm: llm, config: config}
}

type detectedAttribution struct {
	Text       string  `json:"text"`
	SourceID   string  `json:"source_id"`
	Confidence float64 `json:"confidence"`
}

// Enhance attributes response to sources, inserting citation markers
// and producing a markdown-rendered "Sources" footer. When sources is
// empty, response passes through unchanged. When autoDetect is true
// and an LLM is configured, attribution is inferred by asking the LLM
// to map sentences to sources; otherwise explicit [n] markers already
// present in response are used.
func (a *AttributionEnhancer) Enhance(ctx context.Context, response string, sources []SearchResult, query string, autoDetect bool) AttributionResult {
	if len(sources) == 0 {
		return AttributionResult{Response: response, Sources: map[string]SourceInfo{}, Markdown: response}
	}

	var detected []detectedAttribution
	if autoDetect && a.llm != nil {
		detected = a.detectAttributions(ctx, response, sources, query)
	} else {
		detected = extractExplicitCitations(response, sources)
	}

	enhanced, citations := a.addCitationMarkers(response, detected, sources)
	sourceIndex := buildSourceIndex(citations, sources)
	markdown := a.formatMarkdown(enhanced, citations, sourceIndex)

	return AttributionResult{
		Response:  enhanced,
		Citations: citations,
		Sources:   sourceIndex,
		Markdown:  markdown,
	}
}

func (a *AttributionEnhancer) detectAttributions(ctx context.Context, response string, sources []SearchResult, query string) []detectedAttribution {
	limit := a.config.MaxAutoSources
	if limit <= 0 || limit > len(sources) {
		limit = len(sources)
	}

	prompt := attributionDetectionPrompt(query, response, sources[:limit])
	raw, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		GlobalLogger.Warn("attribution detection failed, response left unattributed", "error", err)
		return nil
	}

	var parsed []detectedAttribution
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &parsed); err != nil {
		GlobalLogger.Warn("attribution detection returned unparseable JSON", "error", err)
		return nil
	}

	out := make([]detectedAttribution, 0, len(parsed))
	for _, d := range parsed {
		if d.Confidence >= a.config.MinConfidence {
			out = append(out, d)
		}
	}
	return out
}

var citationMarkerPattern = regexp.MustCompile(`\[(\d+)\]`)
var sentenceBoundaryPattern = regexp.MustCompile(`[^.!?]*[.!?]`)

// extractExplicitCitations reads 1-based [n] markers already present in
// response and attributes the sentence containing each marker to the
// nth source. A marker separated from a sentence's closing punctuation
// only by spaces ("... city. [1]") belongs to that sentence.
func extractExplicitCitations(response string, sources []SearchResult) []detectedAttribution {
	matches := citationMarkerPattern.FindAllStringSubmatchIndex(response, -1)
	var out []detectedAttribution

	for _, m := range matches {
		num, err := strconv.Atoi(response[m[2]:m[3]])
		if err != nil || num < 1 || num > len(sources) {
			continue
		}

		markerStart := m[0]
		start := markerStart - 100
		if start < 0 {
			start = 0
		}
		end := m[1] + 100
		if end > len(response) {
			end = len(response)
		}
		window := response[start:end]
		relativeStart := markerStart - start
		for relativeStart > 0 && window[relativeStart-1] == ' ' {
			relativeStart--
		}

		sentences := sentenceBoundaryPattern.FindAllStringIndex(window, -1)
		for _, s := range sentences {
			if relativeStart >= s[0] && relativeStart <= s[1] {
				out = append(out, detectedAttribution{
					Text:       window[s[0]:s[1]],
					SourceID:   sources[num-1].ID,
					Confidence: 0.9,
				})
				break
			}
		}
	}
	return out
}

func (a *AttributionEnhancer) addCitationMarkers(response string, attributions []detectedAttribution, sources []SearchResult) (string, []Attribution) {
	sourceIndexByID := make(map[string]int, len(sources))
	for i, s := range sources {
		sourceIndexByID[s.ID] = i
	}

	result := response
	var citations []Attribution

	for _, attr := range attributions {
		if attr.SourceID == "" || attr.Text == "" || attr.Confidence < a.config.MinConfidence {
			continue
		}
		srcIdx, ok := sourceIndexByID[attr.SourceID]
		if !ok {
			continue
		}

		citationIndex := len(citations) + 1
		citations = append(citations, Attribution{
			ID:        citationIndex,
			Text:      attr.Text,
			SourceID:  attr.SourceID,
			Relevance: attr.Confidence,
		})

		marker := fmt.Sprintf("[%d]", citationIndex)
		if a.config.CitationStyle == CitationSuperscript {
			marker = fmt.Sprintf("<sup>%d</sup>", citationIndex)
		} else if a.config.CitationStyle == CitationAuthorDate {
			author := sources[srcIdx].Metadata["author"]
			date := sources[srcIdx].Metadata["date"]
			marker = fmt.Sprintf("(%v, %v)", orDefault(author, "Source"), orDefault(date, "n.d."))
		}

		if strings.Contains(result, attr.Text) && !strings.Contains(result, fmt.Sprintf("[%d]", citationIndex)) {
			result = strings.Replace(result, attr.Text, attr.Text+marker, 1)
		}
	}

	return result, citations
}

func orDefault(v any, def string) string {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

// buildSourceIndex groups citations by source, pulling display
// metadata from the originating SearchResult.
func buildSourceIndex(citations []Attribution, sources []SearchResult) map[string]SourceInfo {
	byID := make(map[string]SearchResult, len(sources))
	for _, s := range sources {
		byID[s.ID] = s
	}

	index := make(map[string]SourceInfo)
	for _, c := range citations {
		info, ok := index[c.SourceID]
		if !ok {
			src := byID[c.SourceID]
			info = SourceInfo{
				ID:          c.SourceID,
				Title:       src.Title(),
				URL:         src.URL(),
				ContentType: src.ContentType(),
			}
		}
		info.ChunkCount++
		index[c.SourceID] = info
	}
	return index
}

// formatMarkdown appends a numbered "Sources" section after the
// response, listing each cited source in order of first citation.
func (a *AttributionEnhancer) formatMarkdown(response string, citations []Attribution, sources map[string]SourceInfo) string {
	if len(citations) == 0 {
		return response
	}

	var order []string
	seen := make(map[string]struct{})
	for _, c := range citations {
		if _, ok := seen[c.SourceID]; ok {
			continue
		}
		seen[c.SourceID] = struct{}{}
		order = append(order, c.SourceID)
	}

	var b strings.Builder
	b.WriteString(response)
	b.WriteString("\n\n---\n\n### Sources\n\n")

	for i, id := range order {
		src := sources[id]
		title := src.Title
		if title == "" {
			title = fmt.Sprintf("Source %d", i+1)
		}
		b.WriteString(fmt.Sprintf("%d. **%s**", i+1, title))

		if src.URL != "" && a.config.IncludeURLs {
			if a.config.LinkCitations {
				b.WriteString(fmt.Sprintf(" [Link](%s)", src.URL))
			} else {
				b.WriteString(fmt.Sprintf(" - %s", src.URL))
			}
		}
		b.WriteString("\n")
	}

	return b.String()
}

func attributionDetectionPrompt(query, response string, sources []SearchResult) string {
	var snippets strings.Builder
	for i, s := range sources {
		title := s.Title()
		if title == "" {
			title = fmt.Sprintf("Source %d", i+1)
		}
		text := s.Text
		if len(text) > 300 {
			text = text[:300]
		}
		snippets.WriteString(fmt.Sprintf("Source %d (ID: %s): %s\n%s...\n\n", i+1, s.ID, title, text))
	}

	if query == "" {
		query = "unknown query"
	}

	return "Analyze the following AI response and determine which parts should be attributed to which source documents.\n\n" +
		"Original query: " + query + "\n\n" +
		"AI response:\n" + response + "\n\n" +
		"Source documents:\n" + snippets.String() +
		"For each sentence or claim in the AI response, identify if it should be attributed to one of the sources.\n" +
		"Return a JSON array of attribution objects, where each object has \"text\", \"source_id\", and \"confidence\" " +
		"(a number between 0 and 1). Only include attributions where confidence is above 0.5. " +
		"Only include the JSON array, nothing else."
}

// extractJSONArray trims an LLM response down to its outermost JSON
// array, tolerating a model that wraps its answer in prose or a code fence.
func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}
