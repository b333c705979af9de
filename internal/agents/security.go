package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/nasguard/nasguard/internal/agent"
	"github.com/nasguard/nasguard/internal/appliance"
	"github.com/nasguard/nasguard/internal/store"
)

const (
	unusualLoginHourStart = 2
	unusualLoginHourEnd   = 5
)

// SecurityAgent watches the appliance's security advisor findings and
// the connection log for unusual access patterns.
type SecurityAgent struct {
	*agent.BaseAgent
	client appliance.Client
	since  func() time.Time
}

func NewSecurityAgent(s *store.Store, client appliance.Client) *SecurityAgent {
	return &SecurityAgent{
		BaseAgent: agent.NewBaseAgent("security", s),
		client:    client,
		since:     func() time.Time { return time.Now().Add(-24 * time.Hour) },
	}
}

func (a *SecurityAgent) Check(ctx context.Context) ([]agent.Alert, error) {
	items, err := a.client.SecurityScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("security: fetch scan: %w", err)
	}
	logs, err := a.client.Logs(ctx, a.since())
	if err != nil {
		return nil, fmt.Errorf("security: fetch logs: %w", err)
	}

	var alerts []agent.Alert
	for _, item := range items {
		if item.Status != "fail" {
			continue
		}
		itemCtx, _ := store.NewContext(map[string]any{"check": item.ID, "severity": item.Severity})
		priority := agent.PriorityMedium
		if item.Severity == "critical" || item.Severity == "high" {
			priority = agent.PriorityCritical
		}
		alerts = append(alerts, a.Emit(agent.Alert{
			Type: "security_finding", Priority: priority,
			Message: fmt.Sprintf("security check %q failed: %s", item.ID, item.Description), Context: itemCtx,
		}))
	}

	unusualLogins := 0
	attackSources := make(map[string]int)
	for _, entry := range logs {
		hour := entry.Timestamp.UTC().Hour()
		if hour >= unusualLoginHourStart && hour < unusualLoginHourEnd && entry.Username != "" {
			unusualLogins++
		}
		if entry.SourceIP != "" && entry.Level == "warning" {
			attackSources[entry.SourceIP]++
		}
	}

	if unusualLogins > 2 {
		loginCtx, _ := store.NewContext(map[string]any{"count": int64(unusualLogins)})
		alerts = append(alerts, a.Emit(agent.Alert{
			Type: "unusual_login_time", Priority: agent.PriorityMedium,
			Message: fmt.Sprintf("%d login(s) occurred between %02d:00 and %02d:00 UTC", unusualLogins, unusualLoginHourStart, unusualLoginHourEnd),
			Context: loginCtx,
		}))
	}

	sourceCount := float64(len(attackSources))
	if err := a.Observe("attack_source_count", sourceCount, nil); err != nil {
		return nil, fmt.Errorf("security: observe attack sources: %w", err)
	}
	if a.HasSufficientData("attack_source_count") && a.IsAnomaly("attack_source_count", "attack_source_anomaly", sourceCount) {
		alerts = append(alerts, a.Emit(agent.Alert{
			Type: "attack_source_anomaly", Priority: agent.PriorityHigh,
			Message: fmt.Sprintf("number of distinct flagged source IPs (%d) deviates from the learned baseline", len(attackSources)),
		}))
	}

	return alerts, nil
}
