package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_service",
		Subsystem: "ingest",
		Name:      "batches_total",
		Help:      "Number of ingestion calls grouped by outcome.",
	}, []string{"outcome"})

	eventsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_service",
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Number of telemetry items grouped by category and result.",
	}, []string{"category", "result"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "telemetry_service",
		Subsystem: "ingest",
		Name:      "batch_duration_seconds",
		Help:      "Time spent processing one ingestion call end to end.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	timestampFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_service",
		Subsystem: "ingest",
		Name:      "timestamp_fallbacks_total",
		Help:      "Number of agent timestamps replaced with processing time after parse failure.",
	})

	lastBatchGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "telemetry_service",
		Subsystem: "ingest",
		Name:      "last_batch_ingested_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully ingested batch.",
	})

	riskCreatedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_service",
		Subsystem: "risk",
		Name:      "events_created_total",
		Help:      "Number of risk findings persisted, labeled by rule type.",
	}, []string{"rule"})

	riskFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "telemetry_service",
		Subsystem: "risk",
		Name:      "check_failures_total",
		Help:      "Number of risk evaluations that failed and were discarded.",
	})
)

func init() {
	prometheus.MustRegister(batchesCounter, eventsCounter, batchDuration, timestampFallbacks, lastBatchGauge, riskCreatedCounter, riskFailureCounter)
}

// RecordBatch tracks one ingestion call's outcome and duration.
func RecordBatch(outcome string, elapsed time.Duration) {
	batchesCounter.WithLabelValues(outcome).Inc()
	batchDuration.Observe(elapsed.Seconds())
	if outcome == "accepted" {
		lastBatchGauge.SetToCurrentTime()
	}
}

// RecordEvents tracks accepted/rejected counts for one category.
func RecordEvents(category string, accepted, rejected int) {
	if accepted > 0 {
		eventsCounter.WithLabelValues(category, "accepted").Add(float64(accepted))
	}
	if rejected > 0 {
		eventsCounter.WithLabelValues(category, "rejected").Add(float64(rejected))
	}
}

// RecordTimestampFallback counts a substituted timestamp as a data-quality signal.
func RecordTimestampFallback() {
	timestampFallbacks.Inc()
}

// RecordRiskCreated counts a persisted finding for the given rule.
func RecordRiskCreated(rule string) {
	riskCreatedCounter.WithLabelValues(rule).Inc()
}

// RecordRiskFailure counts a swallowed risk evaluation error.
func RecordRiskFailure() {
	riskFailureCounter.Inc()
}
