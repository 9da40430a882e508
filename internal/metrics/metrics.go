// Package metrics registers the Prometheus metrics shared by the cloud
// and edge HTTP servers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all Prometheus metrics owned by an HTTP server. A fresh
// instance is created per server so tests can inject an isolated
// prometheus.Registry without polluting the default one.
type Registry struct {
	RAGRequestsTotal   *prometheus.CounterVec
	RAGDurationSeconds *prometheus.HistogramVec

	PromptRequestsTotal   *prometheus.CounterVec
	PromptDurationSeconds *prometheus.HistogramVec

	FeedbackSyncRunsTotal *prometheus.CounterVec
	EvalQueueProcessed    prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPDurationSeconds *prometheus.HistogramVec
}

// New registers all metrics against reg.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		RAGRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "energyassistant",
			Subsystem: "rag",
			Name:      "requests_total",
			Help:      "Total number of /api/rag/answer requests, partitioned by outcome.",
		}, []string{"outcome"}),

		RAGDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "energyassistant",
			Subsystem: "rag",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/rag/answer requests.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"outcome"}),

		PromptRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "energyassistant",
			Subsystem: "prompt",
			Name:      "requests_total",
			Help:      "Total number of edge /api/prompt requests, partitioned by category and outcome.",
		}, []string{"category", "outcome"}),

		PromptDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "energyassistant",
			Subsystem: "prompt",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of edge /api/prompt requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category"}),

		FeedbackSyncRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "energyassistant",
			Subsystem: "feedbacksync",
			Name:      "runs_total",
			Help:      "Total number of feedback sync runs, partitioned by outcome.",
		}, []string{"outcome"}),

		EvalQueueProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "energyassistant",
			Subsystem: "evalqueue",
			Name:      "processed_total",
			Help:      "Total number of eval queue rows processed.",
		}),

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "energyassistant",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled, partitioned by method, handler, and status code.",
		}, []string{"method", "handler", "code"}),

		HTTPDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "energyassistant",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "handler"}),
	}
}
