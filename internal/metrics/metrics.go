// Package metrics exposes Prometheus instrumentation for the ingestion and
// summarization pipeline. Collectors are registered once via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArticlesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tf_articles_processed_total",
			Help: "New articles stored during ingestion",
		},
	)

	IndicatorsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tf_indicators_extracted_total",
			Help: "Indicator candidates processed, by type",
		},
		[]string{"type"},
	)

	FeedFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tf_feed_failures_total",
			Help: "Feed fetch or parse failures",
		},
		[]string{"feed"},
	)

	IngestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tf_ingestion_duration_seconds",
			Help:    "Wall time of one ingestion run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	SummaryCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tf_summary_cache_hits_total",
			Help: "Summary cache hits",
		},
	)

	SummaryCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tf_summary_cache_misses_total",
			Help: "Summary cache misses",
		},
	)

	SummaryFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tf_summary_fallbacks_total",
			Help: "Summaries served by the deterministic fallback, by mode",
		},
		[]string{"mode"},
	)
)
