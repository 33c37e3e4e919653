// Package metrics exposes Prometheus counters for the orchestrator. All
// methods are nil-safe so callers can skip metrics wiring entirely.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	taskAttempts *prometheus.CounterVec
	retries      prometheus.Counter
	checkpoints  *prometheus.CounterVec
	approvals    *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		taskAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmadflow_task_attempts_total",
			Help: "Task invocation attempts by role and outcome.",
		}, []string{"role", "outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bmadflow_task_retries_total",
			Help: "Task retries scheduled by the retry policy.",
		}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmadflow_checkpoints_written_total",
			Help: "Checkpoints written by reason.",
		}, []string{"reason"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bmadflow_approval_decisions_total",
			Help: "Approval gate decisions by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.taskAttempts, m.retries, m.checkpoints, m.approvals)
	return m
}

// ObserveTaskAttempt records one invocation attempt.
func (m *Metrics) ObserveTaskAttempt(role, outcome string) {
	if m == nil {
		return
	}
	m.taskAttempts.WithLabelValues(role, outcome).Inc()
}

// ObserveRetry records a scheduled retry.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// ObserveCheckpoint records a written checkpoint.
func (m *Metrics) ObserveCheckpoint(reason string) {
	if m == nil {
		return
	}
	m.checkpoints.WithLabelValues(reason).Inc()
}

// ObserveApproval records an approval gate decision.
func (m *Metrics) ObserveApproval(outcome string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(outcome).Inc()
}

// Handler returns an http.Handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
