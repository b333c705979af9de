package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasguard/nasguard/internal/agent"
)

type stubAgent struct {
	name   string
	alerts []agent.Alert
	err    error
	panics bool
}

func (s *stubAgent) Name() string { return s.name }
func (s *stubAgent) Check(ctx context.Context) ([]agent.Alert, error) {
	if s.panics {
		panic("boom")
	}
	return s.alerts, s.err
}
func (s *stubAgent) AddFeedbackWithContext(f agent.Feedback) error { return nil }
func (s *stubAgent) ReceiveUserFeedback(f agent.Feedback) error    { return nil }
func (s *stubAgent) GetLearningStatus() agent.LearningStatus      { return agent.LearningStatus{Agent: s.name} }

func TestRunAllIsolatesFailingAndPanickingAgents(t *testing.T) {
	o := New()
	o.Register(&stubAgent{name: "ok", alerts: []agent.Alert{{Type: "fine", Priority: agent.PriorityInfo}}})
	o.Register(&stubAgent{name: "broken", err: errors.New("fetch failed")})
	o.Register(&stubAgent{name: "crashy", panics: true})

	results := o.RunAll(context.Background())
	require.Len(t, results, 3)

	byName := map[string]AgentResult{}
	for _, r := range results {
		byName[r.Agent] = r
	}

	assert.NoError(t, byName["ok"].Err)
	assert.Error(t, byName["broken"].Err)
	assert.Error(t, byName["crashy"].Err)

	var panicErr *agent.ErrCheckPanicked
	assert.ErrorAs(t, byName["crashy"].Err, &panicErr)
}

func TestAggregateSortsByPriorityAndReportsAgentFailures(t *testing.T) {
	results := []AgentResult{
		{Agent: "a", Alerts: []agent.Alert{{Type: "low", Priority: agent.PriorityLow}}},
		{Agent: "b", Err: errors.New("down")},
		{Agent: "c", Alerts: []agent.Alert{{Type: "critical", Priority: agent.PriorityCritical}}},
	}

	all := Aggregate(results, agent.PriorityLow)
	require.Len(t, all, 3)
	assert.Equal(t, "critical", all[0].Type)
	assert.Equal(t, agent.PriorityCritical, all[0].Priority)
	assert.Equal(t, "agent_error", all[1].Type)
	assert.Equal(t, "Agent error: down", all[1].Message)
	assert.Equal(t, "low", all[2].Type)
}

func TestAggregateDropsInfoAlertsBelowMinPriority(t *testing.T) {
	results := []AgentResult{
		{Agent: "a", Alerts: []agent.Alert{{Type: "info", Priority: agent.PriorityInfo}}},
		{Agent: "b", Alerts: []agent.Alert{{Type: "low", Priority: agent.PriorityLow}}},
	}

	all := Aggregate(results, agent.PriorityLow)
	require.Len(t, all, 1)
	assert.Equal(t, "low", all[0].Type)
}

func TestAggregateBreaksPriorityTiesByCategory(t *testing.T) {
	results := []AgentResult{
		{Agent: "zeta", Alerts: []agent.Alert{{Type: "z", Priority: agent.PriorityHigh}}},
		{Agent: "alpha", Alerts: []agent.Alert{{Type: "a", Priority: agent.PriorityHigh}}},
	}

	all := Aggregate(results, agent.PriorityLow)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].Category)
	assert.Equal(t, "zeta", all[1].Category)
}

func TestCheckHealthFailsWhenAnyAgentFailed(t *testing.T) {
	assert.NoError(t, CheckHealth([]AgentResult{{Agent: "a"}}))
	assert.Error(t, CheckHealth([]AgentResult{{Agent: "a", Err: errors.New("x")}}))
}
