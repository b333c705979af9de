package agents

import (
	"context"
	"fmt"

	"github.com/nasguard/nasguard/internal/agent"
	"github.com/nasguard/nasguard/internal/appliance"
	"github.com/nasguard/nasguard/internal/store"
)

const updateNagAfterDays = 14

// UpdatesAgent watches for available DSM updates. An available update
// is reported at low priority, or at medium when the update_available
// trend over the last updateNagAfterDays days is stable; the priority
// does not depend on how long the update has been available.
type UpdatesAgent struct {
	*agent.BaseAgent
	client appliance.Client
}

func NewUpdatesAgent(s *store.Store, client appliance.Client) *UpdatesAgent {
	return &UpdatesAgent{BaseAgent: agent.NewBaseAgent("updates", s), client: client}
}

func (a *UpdatesAgent) Check(ctx context.Context) ([]agent.Alert, error) {
	check, err := a.client.CheckForUpdate(ctx)
	if err != nil {
		return nil, fmt.Errorf("updates: fetch update check: %w", err)
	}

	available := 0.0
	if check.Available {
		available = 1.0
	}
	versionCtx, _ := store.NewContext(map[string]any{
		"current_version": check.CurrentVersion,
		"latest_version":  check.LatestVersion,
	})
	if err := a.Observe("update_available", available, versionCtx); err != nil {
		return nil, fmt.Errorf("updates: observe availability: %w", err)
	}

	if !check.Available {
		return []agent.Alert{{
			Type: "up_to_date", Priority: agent.PriorityInfo,
			Message: fmt.Sprintf("DSM %s is up to date", check.CurrentVersion),
		}}, nil
	}

	priority := agent.PriorityLow
	if a.Trend("update_available", updateNagAfterDays) == store.TrendStable {
		priority = agent.PriorityMedium
	}

	return []agent.Alert{a.Emit(agent.Alert{
		Type: "update_available", Priority: priority,
		Message: fmt.Sprintf("DSM %s is available (current: %s)", check.LatestVersion, check.CurrentVersion),
		Context: versionCtx,
	})}, nil
}
