// Package observability provides Prometheus metrics and the HTTP server
// exposing them, plus health endpoints for the launcher process.
package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transport metrics
	EnvelopesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_envelopes_sent_total",
			Help: "Total number of envelopes written to a transport",
		},
		[]string{"transport"},
	)

	EnvelopesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_envelopes_received_total",
			Help: "Total number of envelopes decoded from a transport",
		},
		[]string{"transport"},
	)

	EnvelopesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_envelopes_dropped_total",
			Help: "Total number of malformed envelope records dropped",
		},
		[]string{"transport"},
	)

	// Dialogue metrics
	DialoguesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_dialogues_created_total",
			Help: "Total number of dialogues created",
		},
		[]string{"protocol"},
	)

	DialoguesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_dialogues_completed_total",
			Help: "Total number of dialogues that reached an end state",
		},
		[]string{"protocol", "end_state"},
	)

	MessagesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_messages_rejected_total",
			Help: "Total number of protocol-invalid messages rejected",
		},
		[]string{"protocol"},
	)

	// Executor metrics
	TaskFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentwire_task_failures_total",
			Help: "Total number of failed executor tasks",
		},
		[]string{"policy"},
	)

	RunningTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentwire_running_tasks",
			Help: "Number of tasks currently running under an executor",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers all metrics with the default registry. Safe to call
// more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			EnvelopesSent,
			EnvelopesReceived,
			EnvelopesDropped,
			DialoguesCreated,
			DialoguesCompleted,
			MessagesRejected,
			TaskFailures,
			RunningTasks,
		)
	})
}

// MetricsHandler returns the HTTP handler serving Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
