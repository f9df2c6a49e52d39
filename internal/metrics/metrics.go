// Package metrics records pipeline-wide counters and latency
// histograms via prometheus/client_golang, exposed through a Go
// Snapshot() call rather than an HTTP scrape endpoint.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a private prometheus registry so that constructing
// multiple Pipelines in tests never collides on global metric names.
type Recorder struct {
	registry *prometheus.Registry

	rerankFailures   prometheus.Counter
	deadlineExceeded prometheus.Counter
	adapterTimeouts  *prometheus.CounterVec
	stageLatency     *prometheus.HistogramVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
}

// New constructs a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		rerankFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragcore_rerank_failures_total",
			Help: "Cross-encoder reranking calls that fell back to unranked results.",
		}),
		deadlineExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragcore_deadline_exceeded_total",
			Help: "Requests that hit the per-request deadline before completing.",
		}),
		adapterTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ragcore_adapter_timeouts_total",
			Help: "Adapter calls that exceeded their per-adapter deadline, by adapter name.",
		}, []string{"adapter"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragcore_stage_duration_ms",
			Help:    "Wall-clock duration of each pipeline stage, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"stage"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragcore_cache_hits_total",
			Help: "Result cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragcore_cache_misses_total",
			Help: "Result cache misses.",
		}),
	}
	reg.MustRegister(r.rerankFailures, r.deadlineExceeded, r.adapterTimeouts, r.stageLatency, r.cacheHits, r.cacheMisses)
	return r
}

// IncRerankFailure records a reranking call that degraded to pass-through.
func (r *Recorder) IncRerankFailure() { r.rerankFailures.Inc() }

// IncDeadlineExceeded records a request that hit its deadline.
func (r *Recorder) IncDeadlineExceeded() { r.deadlineExceeded.Inc() }

// IncAdapterTimeout records a timed-out call to the named adapter.
func (r *Recorder) IncAdapterTimeout(adapter string) { r.adapterTimeouts.WithLabelValues(adapter).Inc() }

// ObserveStage records a stage's wall-clock duration in milliseconds.
func (r *Recorder) ObserveStage(stage string, ms float64) { r.stageLatency.WithLabelValues(stage).Observe(ms) }

// IncCacheHit records a result cache hit.
func (r *Recorder) IncCacheHit() { r.cacheHits.Inc() }

// IncCacheMiss records a result cache miss.
func (r *Recorder) IncCacheMiss() { r.cacheMisses.Inc() }

// Snapshot is a point-in-time read of the counters that matter to an
// operator deciding whether the pipeline is healthy.
type Snapshot struct {
	RerankFailures   float64
	DeadlineExceeded float64
	CacheHits        float64
	CacheMisses      float64
}

// Snapshot gathers the current counter values. It never returns an
// error in practice since every metric above is registered at
// construction time; a gathering failure yields zeros.
func (r *Recorder) Snapshot() Snapshot {
	snap := Snapshot{}
	families, err := r.registry.Gather()
	if err != nil {
		return snap
	}
	for _, f := range families {
		switch f.GetName() {
		case "ragcore_rerank_failures_total":
			snap.RerankFailures = firstCounterValue(f)
		case "ragcore_deadline_exceeded_total":
			snap.DeadlineExceeded = firstCounterValue(f)
		case "ragcore_cache_hits_total":
			snap.CacheHits = firstCounterValue(f)
		case "ragcore_cache_misses_total":
			snap.CacheMisses = firstCounterValue(f)
		}
	}
	return snap
}

func firstCounterValue(f *dto.MetricFamily) float64 {
	if len(f.Metric) == 0 {
		return 0
	}
	return f.Metric[0].GetCounter().GetValue()
}
