// Package metrics exposes the Prometheus collectors of the extraction
// engine. They register on the default registry and are served by the
// HTTP API under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Extractions counts finished extractions by outcome. The "code" label is
// "OK" for successes and the failure code otherwise.
var Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nartya_extractions_total",
	Help: "Number of finished extractions by outcome",
}, []string{"code"})

// StrategyWins counts which race strategy produced the winning URL. The
// last-resort read of the video element reports as "final".
var StrategyWins = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nartya_strategy_wins_total",
	Help: "Number of extractions won per strategy",
}, []string{"strategy"})

// ExtractionDuration observes the wall time of one extraction, session
// setup and teardown included.
var ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "nartya_extraction_duration_seconds",
	Help:    "Duration of one extraction",
	Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30},
})

// ActiveSessions is the number of isolated browsing sessions currently open.
var ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "nartya_active_sessions",
	Help: "Number of open browsing sessions",
})

// CacheWarm counts background warming attempts by outcome
// (stored, failed, skipped_busy, skipped_cached).
var CacheWarm = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "nartya_cache_warm_total",
	Help: "Background cache warming attempts by outcome",
}, []string{"outcome"})
