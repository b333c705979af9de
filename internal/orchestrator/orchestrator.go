// Package orchestrator runs every registered domain agent concurrently
// and aggregates their alerts into a single ranked result set
// (spec.md §4.7).
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog/log"

	"github.com/nasguard/nasguard/internal/agent"
)

// AgentResult is one agent's outcome from a single run: either its
// alerts, or the error it failed with. A failing agent never aborts
// the rest of the run.
type AgentResult struct {
	Agent     string
	Alerts    []agent.Alert
	Err       error
	Duration  time.Duration
}

// Orchestrator fans a health check out across every registered agent
// and collects the results.
type Orchestrator struct {
	agents []agent.Agent
}

func New() *Orchestrator {
	return &Orchestrator{}
}

// Register adds an agent to the set RunAll drives.
func (o *Orchestrator) Register(a agent.Agent) {
	o.agents = append(o.agents, a)
}

// AgentByName looks up a registered agent, satisfying api.AgentRegistry
// so the HTTP layer can route feedback without knowing about every
// concrete agent type.
func (o *Orchestrator) AgentByName(name string) (agent.Agent, bool) {
	for _, a := range o.agents {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// LearningStatuses returns the current learning status of every
// registered agent, for building a report.
func (o *Orchestrator) LearningStatuses() []agent.LearningStatus {
	statuses := make([]agent.LearningStatus, 0, len(o.agents))
	for _, a := range o.agents {
		statuses = append(statuses, a.GetLearningStatus())
	}
	return statuses
}

// RunAll runs every registered agent's Check concurrently and returns
// one AgentResult per agent, regardless of whether any individual
// agent failed or panicked (spec.md §5: one agent's failure must not
// prevent others from reporting).
func (o *Orchestrator) RunAll(ctx context.Context) []AgentResult {
	results := make([]AgentResult, len(o.agents))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, a := range o.agents {
		i, a := i, a
		group.Go(func() error {
			results[i] = runOne(groupCtx, a)
			return nil
		})
	}
	_ = group.Wait() // runOne never returns an error; this only waits.

	return results
}

func runOne(ctx context.Context, a agent.Agent) (result AgentResult) {
	result.Agent = a.Name()
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
		if r := recover(); r != nil {
			log.Error().Str("agent", a.Name()).Interface("panic", r).Msg("agent check panicked")
			result.Err = &agent.ErrCheckPanicked{Agent: a.Name(), Value: r}
		}
	}()

	alerts, err := a.Check(ctx)
	if err != nil {
		result.Err = fmt.Errorf("agent %s: %w", a.Name(), err)
		return result
	}
	result.Alerts = alerts
	return result
}

// Aggregate flattens every successful agent's alerts into one slice,
// filtered to priority ≤ minPriority and sorted by (priority, category)
// ascending (spec.md §4.7). A failing agent contributes a synthetic
// high-priority alert describing its own failure instead of silently
// vanishing from the report.
func Aggregate(results []AgentResult, minPriority agent.Priority) []agent.Alert {
	var all []agent.Alert
	for _, r := range results {
		if r.Err != nil {
			all = append(all, agent.Alert{
				Type: "agent_error", Priority: agent.PriorityHigh,
				Message: fmt.Sprintf("Agent error: %v", r.Err), Category: r.Agent,
			})
			continue
		}
		for _, a := range r.Alerts {
			a.Category = r.Agent
			all = append(all, a)
		}
	}

	filtered := all[:0]
	for _, a := range all {
		if a.Priority <= minPriority {
			filtered = append(filtered, a)
		}
	}
	all = filtered

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority < all[j].Priority
		}
		return all[i].Category < all[j].Category
	})
	return all
}

// CheckHealth reports whether every registered agent succeeded on its
// most recent run.
func CheckHealth(results []AgentResult) error {
	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("agent %s unhealthy: %w", r.Agent, r.Err)
		}
	}
	return nil
}
