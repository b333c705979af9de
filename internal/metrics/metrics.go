// Package metrics exposes nasguard's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the orchestrator and API server
// update as they run.
type Metrics struct {
	ChecksTotal      *prometheus.CounterVec
	CheckDuration    *prometheus.HistogramVec
	AlertsByPriority *prometheus.CounterVec
	ActiveAgents     prometheus.Gauge
}

// New registers and returns a fresh collector set against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nasguard",
			Name:      "agent_checks_total",
			Help:      "Number of agent health checks run, by agent and outcome.",
		}, []string{"agent", "outcome"}),

		CheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nasguard",
			Name:      "agent_check_duration_seconds",
			Help:      "Duration of a single agent health check.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent"}),

		AlertsByPriority: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nasguard",
			Name:      "alerts_total",
			Help:      "Number of alerts emitted, by priority.",
		}, []string{"priority"}),

		ActiveAgents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "nasguard",
			Name:      "active_agents",
			Help:      "Number of domain agents registered with the orchestrator.",
		}),
	}
}

// RecordRun updates check/alert metrics from one orchestrator run.
func (m *Metrics) RecordRun(agentName string, durationSeconds float64, failed bool, alertsByPriority map[string]int) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.ChecksTotal.WithLabelValues(agentName, outcome).Inc()
	m.CheckDuration.WithLabelValues(agentName).Observe(durationSeconds)
	for priority, count := range alertsByPriority {
		m.AlertsByPriority.WithLabelValues(priority).Add(float64(count))
	}
}
