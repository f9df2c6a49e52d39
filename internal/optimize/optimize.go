// Package optimize implements the context optimizer: selecting and
// ordering retrieved passages into a token-budgeted context window
// under one of several strategies.
package optimize

import (
	"container/heap"
	"regexp"
	"sort"
	"strings"
)

// Chunk is one candidate passage to optimize over.
type Chunk struct {
	ID           string
	Text         string
	Score        float64
	Metadata     map[string]any
	Order        int
	SourceDocID  string
}

// Strategy selects and orders chunks within Params' constraints.
type Strategy string

const (
	StrategyGreedy    Strategy = "greedy"
	StrategyRelevance Strategy = "relevance"
	StrategyCoverage  Strategy = "coverage"
	StrategyDiverse   Strategy = "diverse"
)

// Params bounds optimization: token and chunk counts, overlap
// tolerance, and the coverage strategy's relevance/diversity tradeoff.
type Params struct {
	MaxTokens         int
	MaxChunks         int
	OverlapThreshold  float64
	DiversityWeight   float64
	MaxSameDoc        int // greedy: cap on chunks from one doc once >=3 docs are represented
	PreserveOrder     bool
	CountTokens       func(string) int
}

// Optimize selects chunks under strategy (falling back to greedy for
// an unrecognized value) and returns them in selection order, or in
// original retrieval order if PreserveOrder is set.
func Optimize(chunks []Chunk, query string, strategy Strategy, p Params) []Chunk {
	if p.CountTokens == nil {
		p.CountTokens = func(s string) int { return len(s) / 4 }
	}
	if p.MaxChunks <= 0 {
		p.MaxChunks = len(chunks)
	}

	var selected []Chunk
	switch strategy {
	case StrategyRelevance:
		selected = applyRelevance(chunks, p)
	case StrategyCoverage:
		selected = applyCoverage(chunks, query, p)
	case StrategyDiverse:
		selected = applyDiverse(chunks, p)
	case StrategyGreedy:
		selected = applyGreedy(chunks, p)
	default:
		selected = applyGreedy(chunks, p)
	}

	if p.PreserveOrder {
		sort.SliceStable(selected, func(i, j int) bool { return selected[i].Order < selected[j].Order })
	}
	return selected
}

func sortedByScoreDesc(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	copy(out, chunks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// applyGreedy selects chunks in score order under the token budget,
// skipping near-duplicates and capping how many chunks from one
// document are admitted once three or more distinct documents are
// already represented in the selection.
func applyGreedy(chunks []Chunk, p Params) []Chunk {
	sorted := sortedByScoreDesc(chunks)

	var selected []Chunk
	tokensUsed := 0
	docCounts := make(map[string]int)

	for _, c := range sorted {
		if len(selected) >= p.MaxChunks {
			break
		}
		chunkTokens := p.CountTokens(c.Text)
		if tokensUsed+chunkTokens > p.MaxTokens {
			continue
		}
		if c.SourceDocID != "" && p.MaxSameDoc > 0 && len(docCounts) >= 3 {
			if docCounts[c.SourceDocID] >= p.MaxSameDoc {
				continue
			}
		}
		if hasSignificantOverlap(c, selected, p.OverlapThreshold) {
			continue
		}

		selected = append(selected, c)
		tokensUsed += chunkTokens
		if c.SourceDocID != "" {
			docCounts[c.SourceDocID]++
		}
	}
	return selected
}

// applyRelevance selects chunks purely in score order under the token
// and chunk-count budget, with no deduplication.
func applyRelevance(chunks []Chunk, p Params) []Chunk {
	sorted := sortedByScoreDesc(chunks)

	var selected []Chunk
	tokensUsed := 0
	for _, c := range sorted {
		if len(selected) >= p.MaxChunks {
			break
		}
		chunkTokens := p.CountTokens(c.Text)
		if tokensUsed+chunkTokens > p.MaxTokens {
			continue
		}
		selected = append(selected, c)
		tokensUsed += chunkTokens
	}
	return selected
}

// applyCoverage greedily grows a selection starting from the top-scored
// chunk that fits the token budget, at each step picking the remaining
// chunk that maximizes
// (1-diversityWeight)*score + diversityWeight*newTermCoverage.
func applyCoverage(chunks []Chunk, query string, p Params) []Chunk {
	sorted := sortedByScoreDesc(chunks)
	seed := -1
	for i, c := range sorted {
		if p.CountTokens(c.Text) <= p.MaxTokens {
			seed = i
			break
		}
	}
	if seed == -1 {
		return nil
	}

	selected := []Chunk{sorted[seed]}
	tokensUsed := p.CountTokens(sorted[seed].Text)
	remaining := sorted[seed+1:]
	coveredTerms := keyTerms(sorted[seed].Text)
	_ = keyTerms(query) // query terms are reserved for future coverage-target weighting

	for len(remaining) > 0 && len(selected) < p.MaxChunks {
		bestIdx := -1
		bestScore := -1.0

		for i, c := range remaining {
			chunkTokens := p.CountTokens(c.Text)
			if tokensUsed+chunkTokens > p.MaxTokens {
				continue
			}
			if hasSignificantOverlap(c, selected, p.OverlapThreshold) {
				continue
			}

			chunkTerms := keyTerms(c.Text)
			newTerms := 0
			for t := range chunkTerms {
				if _, ok := coveredTerms[t]; !ok {
					newTerms++
				}
			}
			coverageScore := 0.0
			if len(chunkTerms) > 0 {
				coverageScore = float64(newTerms) / float64(len(chunkTerms))
			}

			combined := (1-p.DiversityWeight)*c.Score + p.DiversityWeight*coverageScore
			if combined > bestScore {
				bestScore = combined
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}

		chosen := remaining[bestIdx]
		selected = append(selected, chosen)
		tokensUsed += p.CountTokens(chosen.Text)
		for t := range keyTerms(chosen.Text) {
			coveredTerms[t] = struct{}{}
		}
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

// applyDiverse round-robins across documents, always taking the
// highest-scoring not-yet-used chunk from whichever document currently
// has the best available chunk.
func applyDiverse(chunks []Chunk, p Params) []Chunk {
	byDoc := make(map[string][]Chunk)
	for _, c := range chunks {
		key := c.SourceDocID
		if key == "" {
			key = c.ID
		}
		byDoc[key] = append(byDoc[key], c)
	}
	for key := range byDoc {
		byDoc[key] = sortedByScoreDesc(byDoc[key])
	}

	pq := &chunkHeap{}
	heap.Init(pq)
	for docID, list := range byDoc {
		if len(list) > 0 {
			heap.Push(pq, heapItem{score: list[0].Score, docID: docID, index: 0})
		}
	}

	var selected []Chunk
	tokensUsed := 0
	for pq.Len() > 0 && len(selected) < p.MaxChunks {
		item := heap.Pop(pq).(heapItem)
		c := byDoc[item.docID][item.index]

		chunkTokens := p.CountTokens(c.Text)
		if tokensUsed+chunkTokens > p.MaxTokens {
			if item.index+1 < len(byDoc[item.docID]) {
				heap.Push(pq, heapItem{score: byDoc[item.docID][item.index+1].Score, docID: item.docID, index: item.index + 1})
			}
			continue
		}

		if !hasSignificantOverlap(c, selected, p.OverlapThreshold) {
			selected = append(selected, c)
			tokensUsed += chunkTokens
		}

		if item.index+1 < len(byDoc[item.docID]) {
			heap.Push(pq, heapItem{score: byDoc[item.docID][item.index+1].Score, docID: item.docID, index: item.index + 1})
		}
	}

	return selected
}

type heapItem struct {
	score float64
	docID string
	index int
}

type chunkHeap []heapItem

func (h chunkHeap) Len() int            { return len(h) }
func (h chunkHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h chunkHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *chunkHeap) Push(x any)         { *h = append(*h, x.(heapItem)) }
func (h *chunkHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var sentenceSplitter = regexp.MustCompile(`(?:\.|\?|!)\s+`)

func splitSentences(text string) []string {
	raw := sentenceSplitter.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// hasSignificantOverlap reports whether chunk shares at least
// threshold of its sentences verbatim with any already-selected chunk.
func hasSignificantOverlap(chunk Chunk, selected []Chunk, threshold float64) bool {
	if len(selected) == 0 {
		return false
	}
	chunkSentences := splitSentences(chunk.Text)
	if len(chunkSentences) == 0 {
		return false
	}

	for _, sel := range selected {
		selSentences := make(map[string]struct{})
		for _, s := range splitSentences(sel.Text) {
			selSentences[s] = struct{}{}
		}

		overlap := 0
		for _, s := range chunkSentences {
			if _, ok := selSentences[s]; ok {
				overlap++
			}
		}
		ratio := float64(overlap) / float64(len(chunkSentences))
		if ratio >= threshold {
			return true
		}
	}
	return false
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "if": {}, "then": {}, "else": {}, "when": {},
	"at": {}, "by": {}, "for": {}, "with": {}, "about": {}, "against": {}, "between": {}, "into": {},
	"through": {}, "during": {}, "before": {}, "after": {}, "above": {}, "below": {}, "to": {}, "from": {},
	"up": {}, "down": {}, "in": {}, "out": {}, "on": {}, "off": {}, "over": {}, "under": {}, "again": {},
}

var nonWord = regexp.MustCompile(`[^\w]+`)

// keyTerms extracts lowercase, non-stopword words longer than three
// characters, used by the coverage strategy to measure new information.
func keyTerms(text string) map[string]struct{} {
	lower := strings.ToLower(text)
	fields := nonWord.Split(lower, -1)
	terms := make(map[string]struct{})
	for _, w := range fields {
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		terms[w] = struct{}{}
	}
	return terms
}
