package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verdictTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veil_verdicts_total",
			Help: "Pipeline outcomes by deciding gate and status",
		},
		[]string{"gate", "status"},
	)

	assessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veil_assessment_duration_seconds",
			Help:    "End-to-end duration of one pass through the gate chain",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ModelCalls counts outbound calls to the text-generation endpoint.
	// The deterministic pre-filter and the verdict cache must keep this
	// flat for repeated or obviously hostile payloads.
	ModelCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veil_judge_model_calls_total",
			Help: "Calls made to the semantic judge model endpoint",
		},
	)

	// CacheHits counts lookups served from a shared cache ("judge") or
	// the per-process identity cache ("identity").
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veil_cache_hits_total",
			Help: "Cache hits by cache name",
		},
		[]string{"cache"},
	)
)
