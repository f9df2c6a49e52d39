// Package config provides configuration loading for the retrieval core.
// It handles configuration loading, validation, and persistence with
// support for multiple sources:
//   - Configuration files (JSON)
//   - Environment variables
//   - Programmatic defaults
//
// The package implements a hierarchical configuration system where settings can be
// overridden in the following order (highest to lowest precedence):
//   1. Environment variables
//   2. Configuration file
//   3. Default values
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all tunables for the retrieval pipeline: hybrid fusion
// weighting, BM25 scoring constants, per-stage candidate counts,
// reranking, context optimization, result caching, and deadlines.
type Config struct {
	// Hybrid fusion
	HybridAlpha float64 // weight given to the dense score, 0..1

	// BM25 scoring constants
	BM25K1 float64
	BM25B  float64

	// Pipeline candidate counts
	FirstStageK int // candidates pulled from each of bm25/vector before fusion
	FinalK      int // results returned after reranking
	MinResults  int // if the selected method returns fewer than this, retry with Hybrid

	// Reranker
	RerankerEnabled   bool
	RerankerBatchSize int

	// Context optimizer
	OptimizerMaxTokens        int
	OptimizerMaxChunks        int
	OptimizerOverlapThreshold float64
	OptimizerDiversityWeight  float64
	OptimizerMaxSameDoc       int

	// Result cache
	CacheEnabled    bool
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Deadlines
	RequestDeadline time.Duration
	AdapterDeadline time.Duration

	// EmbeddingModel names the dense embedding model passages were
	// indexed with. It is loaded from the file or RAGCORE_EMBEDDING_MODEL
	// but no stage reads it; the embeddings adapter is configured with
	// its model directly.
	EmbeddingModel string

	// ExtraHeaders holds additional HTTP headers. No adapter reads it;
	// the HTTP-backed adapters (cross-encoder, embeddings) send only
	// their own fixed headers.
	ExtraHeaders map[string]string
}

// LoadConfig loads configuration from multiple sources, combining them according
// to the precedence rules. It automatically searches for configuration files in
// standard locations and applies environment variable overrides.
//
// Configuration file search paths:
//   1. $RAGCORE_CONFIG environment variable
//   2. ~/.ragcore/config.json
//   3. ~/.config/ragcore/config.json
//   4. ./ragcore.json
//
// Environment variable overrides (each optional, applied after the file):
//   - RAGCORE_HYBRID_ALPHA
//   - RAGCORE_BM25_K1, RAGCORE_BM25_B
//   - RAGCORE_FIRST_STAGE_K, RAGCORE_FINAL_K, RAGCORE_MIN_RESULTS
//   - RAGCORE_RERANKER_ENABLED, RAGCORE_RERANKER_BATCH_SIZE
//   - RAGCORE_CACHE_ENABLED, RAGCORE_CACHE_TTL_S, RAGCORE_CACHE_MAX_ENTRIES
//   - RAGCORE_REQUEST_DEADLINE_MS, RAGCORE_ADAPTER_DEADLINE_MS
func LoadConfig() (*Config, error) {
	cfg := Default()

	configFile := os.Getenv("RAGCORE_CONFIG")
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			candidates := []string{
				filepath.Join(home, ".ragcore", "config.json"),
				filepath.Join(home, ".config", "ragcore", "config.json"),
				"ragcore.json",
			}
			for _, candidate := range candidates {
				if _, err := os.Stat(candidate); err == nil {
					configFile = candidate
					break
				}
			}
		}
	}

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	applyEnvFloat("RAGCORE_HYBRID_ALPHA", &cfg.HybridAlpha)
	applyEnvFloat("RAGCORE_BM25_K1", &cfg.BM25K1)
	applyEnvFloat("RAGCORE_BM25_B", &cfg.BM25B)
	applyEnvInt("RAGCORE_FIRST_STAGE_K", &cfg.FirstStageK)
	applyEnvInt("RAGCORE_FINAL_K", &cfg.FinalK)
	applyEnvInt("RAGCORE_MIN_RESULTS", &cfg.MinResults)
	applyEnvBool("RAGCORE_RERANKER_ENABLED", &cfg.RerankerEnabled)
	applyEnvInt("RAGCORE_RERANKER_BATCH_SIZE", &cfg.RerankerBatchSize)
	applyEnvInt("RAGCORE_OPTIMIZER_MAX_TOKENS", &cfg.OptimizerMaxTokens)
	applyEnvInt("RAGCORE_OPTIMIZER_MAX_CHUNKS", &cfg.OptimizerMaxChunks)
	applyEnvFloat("RAGCORE_OPTIMIZER_OVERLAP_THRESHOLD", &cfg.OptimizerOverlapThreshold)
	applyEnvFloat("RAGCORE_OPTIMIZER_DIVERSITY_WEIGHT", &cfg.OptimizerDiversityWeight)
	applyEnvBool("RAGCORE_CACHE_ENABLED", &cfg.CacheEnabled)
	applyEnvInt("RAGCORE_CACHE_MAX_ENTRIES", &cfg.CacheMaxEntries)
	if s := os.Getenv("RAGCORE_CACHE_TTL_S"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.CacheTTL = time.Duration(n) * time.Second
		}
	}
	if s := os.Getenv("RAGCORE_REQUEST_DEADLINE_MS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.RequestDeadline = time.Duration(n) * time.Millisecond
		}
	}
	if s := os.Getenv("RAGCORE_ADAPTER_DEADLINE_MS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			cfg.AdapterDeadline = time.Duration(n) * time.Millisecond
		}
	}
	if model := os.Getenv("RAGCORE_EMBEDDING_MODEL"); model != "" {
		cfg.EmbeddingModel = model
	}

	return cfg, nil
}

// Default returns the configuration's built-in defaults, unaffected by
// any config file or environment variable.
func Default() *Config {
	return &Config{
		HybridAlpha:               0.7,
		BM25K1:                    1.5,
		BM25B:                     0.75,
		FirstStageK:               30,
		FinalK:                    5,
		MinResults:                3,
		RerankerEnabled:           true,
		RerankerBatchSize:         32,
		OptimizerMaxTokens:        3000,
		OptimizerMaxChunks:        10,
		OptimizerOverlapThreshold: 0.7,
		OptimizerDiversityWeight:  0.3,
		OptimizerMaxSameDoc:       2,
		CacheEnabled:              true,
		CacheTTL:                  3600 * time.Second,
		CacheMaxEntries:           10000,
		RequestDeadline:           30 * time.Second,
		AdapterDeadline:           10 * time.Second,
		ExtraHeaders:              make(map[string]string),
	}
}

func applyEnvFloat(key string, dst *float64) {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*dst = v
		}
	}
}

func applyEnvInt(key string, dst *int) {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			*dst = v
		}
	}
}

func applyEnvBool(key string, dst *bool) {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.ParseBool(s); err == nil {
			*dst = v
		}
	}
}

// Save persists the configuration to a JSON file at the specified path.
// It creates any necessary parent directories.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
