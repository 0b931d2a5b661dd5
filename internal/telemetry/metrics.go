package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SamplesEvaluated counts samples run through the rule registry
	SamplesEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgewatch",
			Name:      "samples_evaluated_total",
			Help:      "Total number of samples evaluated by the detection rules",
		},
		[]string{"kind"},
	)

	// ThreatsDetected counts confirmed detections published by the detector
	ThreatsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgewatch",
			Name:      "threats_detected_total",
			Help:      "Total number of threat events published",
		},
		[]string{"type", "severity"},
	)

	// ThreatsSuppressed counts detections collapsed into an active incident
	ThreatsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgewatch",
			Name:      "threats_suppressed_total",
			Help:      "Total number of detections suppressed by incident deduplication",
		},
		[]string{"type"},
	)

	// ActionsExecuted counts protection actions by outcome
	ActionsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgewatch",
			Name:      "protection_actions_total",
			Help:      "Total number of protection actions executed",
		},
		[]string{"action", "result"},
	)

	// StoreErrors counts event store operation failures
	StoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgewatch",
			Name:      "store_errors_total",
			Help:      "Total number of event store failures",
		},
		[]string{"operation"},
	)

	// QueueDroppedTotal counts threats evicted from the bounded queue
	QueueDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgewatch",
			Name:      "queue_dropped_total",
			Help:      "Total number of threat events dropped because the queue was full",
		},
	)

	// QueueDepth tracks the current number of queued threat events
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edgewatch",
			Name:      "queue_depth",
			Help:      "Current number of threat events waiting for the protection engine",
		},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// This function is idempotent and can be called multiple times safely.
func InitMetrics() {
	once.Do(func() {
		// Register metrics, ignoring errors if already registered
		prometheus.DefaultRegisterer.Register(SamplesEvaluated)
		prometheus.DefaultRegisterer.Register(ThreatsDetected)
		prometheus.DefaultRegisterer.Register(ThreatsSuppressed)
		prometheus.DefaultRegisterer.Register(ActionsExecuted)
		prometheus.DefaultRegisterer.Register(StoreErrors)
		prometheus.DefaultRegisterer.Register(QueueDroppedTotal)
		prometheus.DefaultRegisterer.Register(QueueDepth)
	})
}
