package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultEmbeddingAPI = "https://api.openai.com/v1/embeddings"

// OpenAIEmbeddings implements Embeddings over OpenAI's embeddings
// endpoint. A rate.Limiter caps outbound request rate so a burst of
// concurrent hybrid-retrieval calls can't overrun the provider's
// per-key quota.
type OpenAIEmbeddings struct {
	apiKey    string
	model     string
	apiURL    string
	dimension int
	client    *http.Client
	limiter   *rate.Limiter
}

// EmbeddingsOption configures an OpenAIEmbeddings.
type EmbeddingsOption func(*OpenAIEmbeddings)

// WithEmbeddingsAPIURL overrides the embeddings endpoint, for
// OpenAI-compatible self-hosted servers.
func WithEmbeddingsAPIURL(url string) EmbeddingsOption {
	return func(e *OpenAIEmbeddings) { e.apiURL = url }
}

// WithEmbeddingsRateLimit caps outbound requests per second.
func WithEmbeddingsRateLimit(requestsPerSecond float64, burst int) EmbeddingsOption {
	return func(e *OpenAIEmbeddings) { e.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst) }
}

// NewOpenAIEmbeddings constructs an Embeddings adapter for the given
// model and its known output dimension.
func NewOpenAIEmbeddings(apiKey, model string, dimension int, opts ...EmbeddingsOption) *OpenAIEmbeddings {
	e := &OpenAIEmbeddings{
		apiKey:    apiKey,
		model:     model,
		apiURL:    defaultEmbeddingAPI,
		dimension: dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(20), 20),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension implements Embeddings.
func (e *OpenAIEmbeddings) Dimension() int { return e.dimension }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed implements Embeddings.
func (e *OpenAIEmbeddings) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings request failed: %s: %s", resp.Status, data)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}
