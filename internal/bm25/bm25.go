// Package bm25 implements sparse (keyword) retrieval with the Okapi BM25
// ranking function. The index favors readers over writers: Add and
// Remove stage changes against a working set, and Rebuild computes an
// immutable snapshot that Search reads through an atomic pointer, so
// concurrent searches never block on, or observe a half-built index
// during, a rebuild.
package bm25

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Params holds the scoring constants for the BM25 formula.
type Params struct {
	K1 float64 // term frequency saturation, 1.2-2.0 typical
	B  float64 // document length normalization, 0.75 typical
}

// DefaultParams returns the constants recommended by the original
// Okapi BM25 research and used throughout the retrieval core.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

// Result is one scored document returned by Search.
type Result struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]any
}

type doc struct {
	text       string
	metadata   map[string]any
	termFreq   map[string]int
	length     int
}

// snapshot is the immutable, precomputed state Search reads. Rebuild
// produces a new snapshot and swaps it in atomically; readers in
// flight keep using the snapshot they already loaded.
type snapshot struct {
	docs         map[string]doc
	docFreq      map[string]int
	avgDocLength float64
	totalDocs    int
	params       Params
}

// Index is a thread-safe BM25 sparse index.
type Index struct {
	mu   sync.Mutex // protects the pending working set below
	docs map[string]doc

	params Params
	cur    atomic.Pointer[snapshot]
}

// New creates an empty BM25 index with the given scoring parameters.
func New(params Params) *Index {
	idx := &Index{
		docs:   make(map[string]doc),
		params: params,
	}
	idx.cur.Store(&snapshot{
		docs:    map[string]doc{},
		docFreq: map[string]int{},
		params:  params,
	})
	return idx
}

var tokenSplitter = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Tokenize lowercases text, splits on non-alphanumeric runs, and drops
// stopwords. It is exported so callers (e.g. a query analyzer wanting
// term overlap) can tokenize consistently with the index.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := tokenSplitter.Split(lower, -1)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || isStopword(f) {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// Add stages a document into the working set. It does not affect
// Search results until Rebuild is called.
func (idx *Index) Add(ctx context.Context, id string, text string, metadata map[string]any) {
	terms := Tokenize(text)
	tf := make(map[string]int, len(terms))
	for _, t := range terms {
		tf[t]++
	}
	idx.mu.Lock()
	idx.docs[id] = doc{text: text, metadata: metadata, termFreq: tf, length: len(terms)}
	idx.mu.Unlock()
}

// Remove stages a document's removal from the working set. It does not
// affect Search results until Rebuild is called.
func (idx *Index) Remove(ctx context.Context, id string) {
	idx.mu.Lock()
	delete(idx.docs, id)
	idx.mu.Unlock()
}

// Rebuild computes document-frequency and length statistics over the
// current working set and atomically publishes them for Search. It is
// the only point at which index state visible to readers changes.
func (idx *Index) Rebuild(ctx context.Context) {
	idx.mu.Lock()
	docsCopy := make(map[string]doc, len(idx.docs))
	for id, d := range idx.docs {
		docsCopy[id] = d
	}
	idx.mu.Unlock()

	docFreq := make(map[string]int)
	var totalLength int
	for _, d := range docsCopy {
		for term := range d.termFreq {
			docFreq[term]++
		}
		totalLength += d.length
	}

	avg := 0.0
	if len(docsCopy) > 0 {
		avg = float64(totalLength) / float64(len(docsCopy))
	}

	idx.cur.Store(&snapshot{
		docs:         docsCopy,
		docFreq:      docFreq,
		avgDocLength: avg,
		totalDocs:    len(docsCopy),
		params:       idx.params,
	})
}

// Filters is an equality/membership filter set. A scalar value requires
// an exact match against the document's metadata; a slice value requires
// membership. A filter key absent from a document's metadata fails the
// match, mirroring a strict AND over all provided filters.
type Filters map[string]any

func matches(metadata map[string]any, filters Filters) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []string:
			found := false
			for _, v := range w {
				if s, ok := got.(string); ok && s == v {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case []any:
			found := false
			for _, v := range w {
				if got == v {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

// Search scores every indexed document against query using BM25 and
// returns the topK highest-scoring matches, optionally constrained by
// filters. It reads only the most recently Rebuild-published snapshot
// and never blocks on concurrent Add/Remove/Rebuild calls.
func (idx *Index) Search(ctx context.Context, query string, topK int, filters Filters) []Result {
	snap := idx.cur.Load()
	queryTerms := Tokenize(query)

	scores := make(map[string]float64)
	for _, term := range queryTerms {
		df, ok := snap.docFreq[term]
		if !ok || df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(snap.totalDocs)-float64(df)+0.5)/(float64(df)+0.5))

		for id, d := range snap.docs {
			tf, ok := d.termFreq[term]
			if !ok || tf == 0 {
				continue
			}
			numerator := float64(tf) * (snap.params.K1 + 1)
			denom := float64(tf) + snap.params.K1*(1-snap.params.B+snap.params.B*float64(d.length)/snap.avgDocLength)
			scores[id] += idf * numerator / denom
		}
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		d := snap.docs[id]
		if len(filters) > 0 && !matches(d.metadata, filters) {
			continue
		}
		results = append(results, Result{ID: id, Text: d.text, Score: score, Metadata: d.metadata})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Len returns the number of documents in the most recently published
// snapshot.
func (idx *Index) Len() int {
	return idx.cur.Load().totalDocs
}
