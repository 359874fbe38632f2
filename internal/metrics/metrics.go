package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the execution core
type Metrics struct {
	registry *prometheus.Registry

	// Tool registry metrics
	ToolExecutions        *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec
	RateLimitDenials      *prometheus.CounterVec

	// Safety controller metrics
	Validations       *prometheus.CounterVec
	ApprovalDecisions *prometheus.CounterVec

	// Parallel executor metrics
	ParallelTasks             *prometheus.CounterVec
	ParallelExecutionDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ToolExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
		RateLimitDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_rate_limit_denials_total",
				Help: "Total number of tool calls denied by rate limiting",
			},
			[]string{"tool_name"},
		),

		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safety_validations_total",
				Help: "Total number of safety validations by approval requirement",
			},
			[]string{"approval_requirement"},
		),
		ApprovalDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_decisions_total",
				Help: "Total number of approval decisions",
			},
			[]string{"outcome"},
		),

		ParallelTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parallel_tasks_total",
				Help: "Total number of parallel tasks by terminal status",
			},
			[]string{"status"},
		),
		ParallelExecutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "parallel_execution_duration_seconds",
				Help:    "Wall-clock duration of parallel execution batches in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.ToolExecutions)
	m.registry.MustRegister(m.ToolExecutionDuration)
	m.registry.MustRegister(m.RateLimitDenials)

	m.registry.MustRegister(m.Validations)
	m.registry.MustRegister(m.ApprovalDecisions)

	m.registry.MustRegister(m.ParallelTasks)
	m.registry.MustRegister(m.ParallelExecutionDuration)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
