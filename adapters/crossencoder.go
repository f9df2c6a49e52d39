package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPCrossEncoder scores (query, passage) pairs against an HTTP
// endpoint serving a cross-encoder model (e.g. a sentence-transformers
// model behind a small inference server). Batches are capped at
// batchSize pairs per request, matching the model's own batching.
type HTTPCrossEncoder struct {
	endpoint  string
	modelName string
	batchSize int
	client    *http.Client
}

// NewHTTPCrossEncoder constructs a cross-encoder adapter pointed at
// endpoint, which must accept {"model","pairs":[["q","p"],...]} and
// return {"scores":[...]}.
func NewHTTPCrossEncoder(endpoint, modelName string, batchSize int) *HTTPCrossEncoder {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &HTTPCrossEncoder{
		endpoint:  endpoint,
		modelName: modelName,
		batchSize: batchSize,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type crossEncoderRequest struct {
	Model string     `json:"model"`
	Pairs [][2]string `json:"pairs"`
}

type crossEncoderResponse struct {
	Scores []float64 `json:"scores"`
}

// Score implements CrossEncoder, batching passages in groups of
// batchSize and scoring each batch with its own request.
func (c *HTTPCrossEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	scores := make([]float64, 0, len(passages))
	for start := 0; start < len(passages); start += c.batchSize {
		end := start + c.batchSize
		if end > len(passages) {
			end = len(passages)
		}
		batchScores, err := c.scoreBatch(ctx, query, passages[start:end])
		if err != nil {
			return nil, err
		}
		scores = append(scores, batchScores...)
	}
	return scores, nil
}

func (c *HTTPCrossEncoder) scoreBatch(ctx context.Context, query string, passages []string) ([]float64, error) {
	pairs := make([][2]string, len(passages))
	for i, p := range passages {
		pairs[i] = [2]string{query, p}
	}

	body, err := json.Marshal(crossEncoderRequest{Model: c.modelName, Pairs: pairs})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cross-encoder request failed: %s: %s", resp.Status, data)
	}

	var parsed crossEncoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Scores) != len(passages) {
		return nil, fmt.Errorf("cross-encoder returned %d scores for %d passages", len(parsed.Scores), len(passages))
	}
	return parsed.Scores, nil
}
