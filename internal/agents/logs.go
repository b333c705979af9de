package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/nasguard/nasguard/internal/agent"
	"github.com/nasguard/nasguard/internal/appliance"
	"github.com/nasguard/nasguard/internal/store"
)

const recurringIssueThreshold = 3

// LogsAgent watches the system log for error-rate spikes and issues
// that keep recurring rather than resolving.
type LogsAgent struct {
	*agent.BaseAgent
	client appliance.Client
	since  func() time.Time
}

func NewLogsAgent(s *store.Store, client appliance.Client) *LogsAgent {
	return &LogsAgent{
		BaseAgent: agent.NewBaseAgent("logs", s),
		client:    client,
		since:     func() time.Time { return time.Now().Add(-1 * time.Hour) },
	}
}

func (a *LogsAgent) Check(ctx context.Context) ([]agent.Alert, error) {
	entries, err := a.client.Logs(ctx, a.since())
	if err != nil {
		return nil, fmt.Errorf("logs: fetch logs: %w", err)
	}

	var errorCount int
	occurrences := make(map[string]int)
	for _, e := range entries {
		if e.Level == "error" || e.Level == "critical" {
			errorCount++
			occurrences[e.Message]++
		}
	}

	var alerts []agent.Alert

	if err := a.Observe("error_count", float64(errorCount), nil); err != nil {
		return nil, fmt.Errorf("logs: observe error count: %w", err)
	}
	if a.HasSufficientData("error_count") && a.IsAnomaly("error_count", "error_spike", float64(errorCount)) {
		alerts = append(alerts, a.Emit(agent.Alert{
			Type: "error_spike", Priority: agent.PriorityHigh,
			Message: fmt.Sprintf("%d error-level log entries in the last hour deviates from the learned baseline", errorCount),
		}))
	}

	for message, count := range occurrences {
		if count < recurringIssueThreshold {
			continue
		}
		msgCtx, _ := store.NewContext(map[string]any{"message": message})
		alerts = append(alerts, a.Emit(agent.Alert{
			Type: "recurring_issue", Priority: agent.PriorityMedium,
			Message: fmt.Sprintf("log message recurred %d times: %q", count, message), Context: msgCtx,
		}))
	}

	return alerts, nil
}
