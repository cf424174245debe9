// Package metrics exposes Prometheus collectors for resolution, jobs and
// dispatch.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moviehound"

// Metrics owns a private registry. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TierAttempts  *prometheus.CounterVec
	TierFailures  *prometheus.CounterVec
	Resolutions   *prometheus.CounterVec
	JobsStarted   prometheus.Counter
	JobsFinished  *prometheus.CounterVec
	Dispatches    *prometheus.CounterVec
	RenameOutcome *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		TierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "tier_attempts_total",
			Help:      "Source tier lookups attempted",
		}, []string{"tier"}),
		TierFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "tier_failures_total",
			Help:      "Source tier lookups that failed and were skipped",
		}, []string{"tier"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Resolution outcomes by winning tier (none when exhausted)",
		}, []string{"tier"}),
		JobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "started_total",
			Help:      "Refresh jobs started",
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Refresh jobs finished by terminal status",
		}, []string{"status"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "torrents_total",
			Help:      "Torrents sent to download clients",
		}, []string{"client_type", "result"}),
		RenameOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rename",
			Name:      "workers_total",
			Help:      "Rename workers by terminal state",
		}, []string{"state"}),
	}

	registry.MustRegister(
		m.TierAttempts,
		m.TierFailures,
		m.Resolutions,
		m.JobsStarted,
		m.JobsFinished,
		m.Dispatches,
		m.RenameOutcome,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TierAttempt(tier string) {
	if m == nil {
		return
	}
	m.TierAttempts.WithLabelValues(tier).Inc()
}

func (m *Metrics) TierFailure(tier string) {
	if m == nil {
		return
	}
	m.TierFailures.WithLabelValues(tier).Inc()
}

// Resolved records an outcome. An empty tier means every tier was exhausted.
func (m *Metrics) Resolved(tier string) {
	if m == nil {
		return
	}
	if tier == "" {
		tier = "none"
	}
	m.Resolutions.WithLabelValues(tier).Inc()
}

func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.JobsStarted.Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) Dispatched(clientType string, ok bool) {
	if m == nil {
		return
	}
	result := "added"
	if !ok {
		result = "failed"
	}
	m.Dispatches.WithLabelValues(clientType, result).Inc()
}

func (m *Metrics) RenameFinished(state string) {
	if m == nil {
		return
	}
	m.RenameOutcome.WithLabelValues(state).Inc()
}
