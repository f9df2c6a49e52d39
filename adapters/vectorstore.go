package adapters

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusVectorStore implements VectorStore against a Milvus collection.
// It assumes the collection stores the embedding under field "embedding"
// and a string id under field "id", and returns whatever other scalar
// columns IncludeColumns names as match metadata.
type MilvusVectorStore struct {
	client         client.Client
	metricType     entity.MetricType
	idColumn       string
	vectorColumn   string
	includeColumns []string
}

// MilvusOption configures a MilvusVectorStore.
type MilvusOption func(*MilvusVectorStore)

// WithMilvusColumns overrides the id/vector field names, default "id"/"embedding".
func WithMilvusColumns(idColumn, vectorColumn string) MilvusOption {
	return func(m *MilvusVectorStore) { m.idColumn, m.vectorColumn = idColumn, vectorColumn }
}

// WithMilvusIncludeColumns names scalar columns returned as match metadata.
func WithMilvusIncludeColumns(columns ...string) MilvusOption {
	return func(m *MilvusVectorStore) { m.includeColumns = columns }
}

// NewMilvusVectorStore connects to a Milvus server at address and
// returns a VectorStore backed by it.
func NewMilvusVectorStore(ctx context.Context, address string, opts ...MilvusOption) (*MilvusVectorStore, error) {
	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus: %w", err)
	}
	m := &MilvusVectorStore{
		client:       c,
		metricType:   entity.COSINE,
		idColumn:     "id",
		vectorColumn: "embedding",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Search implements VectorStore. filters becomes a Milvus boolean
// expression over scalar columns; only equality and list-membership
// are supported, matching what the hybrid retriever's Filters need.
func (m *MilvusVectorStore) Search(ctx context.Context, collection string, vector []float32, topK int, filters map[string]any) ([]VectorMatch, error) {
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, err
	}

	columns := append([]string{m.idColumn}, m.includeColumns...)
	result, err := m.client.Search(ctx, collection, nil, exprFromFilters(filters), columns,
		[]entity.Vector{entity.FloatVector(vector)}, m.vectorColumn, m.metricType, topK, sp)
	if err != nil {
		return nil, err
	}

	var matches []VectorMatch
	for _, r := range result {
		idCol := r.Fields.GetColumn(m.idColumn)
		for i := 0; i < r.ResultCount; i++ {
			id, err := idCol.GetAsString(i)
			if err != nil {
				continue
			}
			meta := make(map[string]any, len(m.includeColumns))
			for _, col := range m.includeColumns {
				if c := r.Fields.GetColumn(col); c != nil {
					if v, err := c.GetAsString(i); err == nil {
						meta[col] = v
					}
				}
			}
			matches = append(matches, VectorMatch{ID: id, Score: float64(r.Scores[i]), Metadata: meta})
		}
	}
	return matches, nil
}

// exprFromFilters renders a Filters map as a Milvus boolean expression.
// Scalar values become equality terms, slices become "in" terms, all
// ANDed together.
func exprFromFilters(filters map[string]any) string {
	if len(filters) == 0 {
		return ""
	}
	expr := ""
	for key, val := range filters {
		if expr != "" {
			expr += " && "
		}
		switch v := val.(type) {
		case []string:
			expr += fmt.Sprintf("%s in %v", key, quoteAll(v))
		default:
			expr += fmt.Sprintf("%s == %q", key, fmt.Sprint(v))
		}
	}
	return expr
}

func quoteAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = fmt.Sprintf("%q", v)
	}
	return out
}

// MemoryVectorStore is an in-memory linear-search VectorStore, used in
// tests and as a fallback when no external vector database is wired.
type MemoryVectorStore struct {
	mu      sync.RWMutex
	records map[string]map[string]memRecord // collection -> id -> record
}

type memRecord struct {
	vector   []float32
	metadata map[string]any
}

// NewMemoryVectorStore returns an empty MemoryVectorStore.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{records: make(map[string]map[string]memRecord)}
}

// Upsert adds or replaces a vector under the given collection and id.
func (m *MemoryVectorStore) Upsert(collection, id string, vector []float32, metadata map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[collection] == nil {
		m.records[collection] = make(map[string]memRecord)
	}
	m.records[collection][id] = memRecord{vector: vector, metadata: metadata}
}

// Search implements VectorStore using cosine similarity.
func (m *MemoryVectorStore) Search(ctx context.Context, collection string, vector []float32, topK int, filters map[string]any) ([]VectorMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	coll := m.records[collection]
	matches := make([]VectorMatch, 0, len(coll))
	for id, rec := range coll {
		if len(filters) > 0 && !matchesMeta(rec.metadata, filters) {
			continue
		}
		matches = append(matches, VectorMatch{ID: id, Score: cosineSimilarity(vector, rec.vector), Metadata: rec.metadata})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func matchesMeta(metadata map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if list, ok := want.([]string); ok {
			found := false
			for _, v := range list {
				if s, ok := got.(string); ok && s == v {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if list, ok := want.([]any); ok {
			found := false
			for _, v := range list {
				if got == v {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
