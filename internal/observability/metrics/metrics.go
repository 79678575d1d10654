// Package metrics provides Prometheus instrumentation for the mastering core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks the render pipeline (chunker, DSP graph, continuity).
type PipelineMetrics struct {
	ChunksProcessed  *prometheus.CounterVec // stage: decode|dsp|crossfade, status: success|error
	ChunkDuration    *prometheus.HistogramVec
	RepairedSamples  prometheus.Counter
	RendersStarted   prometheus.Counter
	RendersCancelled prometheus.Counter
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		ChunksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auralis_pipeline_chunks_total",
			Help: "Chunks processed by pipeline stage and status",
		}, []string{"stage", "status"}),
		ChunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "auralis_pipeline_chunk_duration_seconds",
			Help:    "Wall-clock time spent processing one chunk per stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"stage"}),
		RepairedSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auralis_pipeline_repaired_samples_total",
			Help: "Non-finite samples replaced with silence by the limiter",
		}),
		RendersStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auralis_pipeline_renders_started_total",
			Help: "Render jobs started",
		}),
		RendersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auralis_pipeline_renders_cancelled_total",
			Help: "Render jobs cancelled before completion",
		}),
	}
	reg.MustRegister(m.ChunksProcessed, m.ChunkDuration, m.RepairedSamples,
		m.RendersStarted, m.RendersCancelled)
	return m
}

// CacheMetrics tracks the rendered-chunk cache and the query cache.
type CacheMetrics struct {
	Hits      *prometheus.CounterVec // cache: chunk|query
	Misses    *prometheus.CounterVec
	Evictions *prometheus.CounterVec // reason: lru|ttl|invalidation|flush
	SizeBytes prometheus.Gauge
	Entries   prometheus.Gauge
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auralis_cache_hits_total",
			Help: "Cache hits by cache kind",
		}, []string{"cache"}),
		Misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auralis_cache_misses_total",
			Help: "Cache misses by cache kind",
		}, []string{"cache"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auralis_cache_evictions_total",
			Help: "Cache evictions by cache kind and reason",
		}, []string{"cache", "reason"}),
		SizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auralis_chunk_cache_size_bytes",
			Help: "Bytes currently retained by the rendered-chunk cache",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auralis_chunk_cache_entries",
			Help: "Entries currently retained by the rendered-chunk cache",
		}),
	}
	reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.SizeBytes, m.Entries)
	return m
}

// ExtractionMetrics tracks the fingerprint extraction queue and workers.
type ExtractionMetrics struct {
	QueueDepth    prometheus.Gauge
	JobsCompleted *prometheus.CounterVec // status: complete|error|sidecar
	JobDuration   prometheus.Histogram
	ActiveWorkers prometheus.Gauge
}

// NewExtractionMetrics creates and registers extraction metrics.
func NewExtractionMetrics(reg prometheus.Registerer) *ExtractionMetrics {
	m := &ExtractionMetrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auralis_extraction_queue_depth",
			Help: "Fingerprint jobs waiting in the priority queue",
		}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auralis_extraction_jobs_total",
			Help: "Fingerprint jobs finished by outcome",
		}, []string{"status"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "auralis_extraction_job_duration_seconds",
			Help:    "Wall-clock time per fingerprint job",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "auralis_extraction_active_workers",
			Help: "Workers currently executing a fingerprint job",
		}),
	}
	reg.MustRegister(m.QueueDepth, m.JobsCompleted, m.JobDuration, m.ActiveWorkers)
	return m
}

// PlayerMetrics tracks the player state machine.
type PlayerMetrics struct {
	Transitions        *prometheus.CounterVec // from, to
	IllegalTransitions prometheus.Counter
}

// NewPlayerMetrics creates and registers player metrics.
func NewPlayerMetrics(reg prometheus.Registerer) *PlayerMetrics {
	m := &PlayerMetrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auralis_player_transitions_total",
			Help: "Player state transitions",
		}, []string{"from", "to"}),
		IllegalTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auralis_player_illegal_transitions_total",
			Help: "Rejected player state transitions",
		}),
	}
	reg.MustRegister(m.Transitions, m.IllegalTransitions)
	return m
}

// Metrics bundles every metric family behind one registry.
type Metrics struct {
	Registry   *prometheus.Registry
	Pipeline   *PipelineMetrics
	Cache      *CacheMetrics
	Extraction *ExtractionMetrics
	Player     *PlayerMetrics
}

// NewMetrics creates a registry with all metric families registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		Registry:   reg,
		Pipeline:   NewPipelineMetrics(reg),
		Cache:      NewCacheMetrics(reg),
		Extraction: NewExtractionMetrics(reg),
		Player:     NewPlayerMetrics(reg),
	}
}
