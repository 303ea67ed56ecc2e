package consumer

import "github.com/prometheus/client_golang/prometheus"

var (
	auditedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_service",
		Subsystem: "consumer",
		Name:      "events_audited_total",
		Help:      "Number of events written to the audit log, by topic and event type.",
	}, []string{"topic", "event_type"})

	handlerFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_service",
		Subsystem: "consumer",
		Name:      "handler_failures_total",
		Help:      "Number of handler failures that left the offset uncommitted.",
	}, []string{"topic", "event_type"})

	malformedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "telemetry_service",
		Subsystem: "consumer",
		Name:      "malformed_records_total",
		Help:      "Number of records skipped because they could not be decoded.",
	}, []string{"topic"})

	lastEventGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "telemetry_service",
		Subsystem: "consumer",
		Name:      "last_event_timestamp_seconds",
		Help:      "Producer timestamp of the most recent audited event per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(auditedCounter, handlerFailureCounter, malformedCounter, lastEventGauge)
}

func recordProcessed(msg Message) {
	auditedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastEventGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerFailureCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	malformedCounter.WithLabelValues(topic).Inc()
}
