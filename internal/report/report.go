// Package report assembles the orchestrator's aggregated alerts and
// per-agent learning status into the bundle served to clients
// (spec.md §4.8). Rendering to any particular output format is out of
// scope: Report is a plain data bundle.
package report

import (
	"time"

	"github.com/nasguard/nasguard/internal/agent"
	"github.com/nasguard/nasguard/internal/orchestrator"
)

// Report is a single point-in-time health snapshot.
type Report struct {
	GeneratedAt time.Time
	Alerts      []agent.Alert
	AgentStatus []orchestrator.AgentResult
	Learning    []agent.LearningStatus
}

// HasCriticalAlerts reports whether the report contains any
// critical-priority alert.
func (r Report) HasCriticalAlerts() bool {
	return r.AlertCountByPriority()[agent.PriorityCritical] > 0
}

// HasHighAlerts reports whether the report contains any high-or-worse
// priority alert.
func (r Report) HasHighAlerts() bool {
	counts := r.AlertCountByPriority()
	return counts[agent.PriorityCritical] > 0 || counts[agent.PriorityHigh] > 0
}

// AlertCountByPriority tallies alerts per priority level.
func (r Report) AlertCountByPriority() map[agent.Priority]int {
	counts := make(map[agent.Priority]int, 5)
	for _, a := range r.Alerts {
		counts[a.Priority]++
	}
	return counts
}

// Build assembles a Report from an orchestrator run and the current
// learning status of every agent involved.
func Build(results []orchestrator.AgentResult, learning []agent.LearningStatus, now time.Time) Report {
	return Report{
		GeneratedAt: now,
		Alerts:      orchestrator.Aggregate(results, agent.PriorityLow),
		AgentStatus: results,
		Learning:    learning,
	}
}
