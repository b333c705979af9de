package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasguard/nasguard/internal/store"
)

type memPersistence struct {
	baselines map[string]*store.Baseline
	patterns  map[string]*store.Pattern
}

func newMemPersistence() *memPersistence {
	return &memPersistence{baselines: map[string]*store.Baseline{}, patterns: map[string]*store.Pattern{}}
}

func (m *memPersistence) LoadObservations() ([]store.Observation, error) { return nil, nil }
func (m *memPersistence) SaveObservations([]store.Observation) error     { return nil }
func (m *memPersistence) LoadBaselines() (map[string]*store.Baseline, error) {
	return m.baselines, nil
}
func (m *memPersistence) SaveBaselines(b map[string]*store.Baseline) error { m.baselines = b; return nil }
func (m *memPersistence) LoadPatterns() (map[string]*store.Pattern, error) {
	return m.patterns, nil
}
func (m *memPersistence) SavePatterns(p map[string]*store.Pattern) error { m.patterns = p; return nil }
func (m *memPersistence) LoadFeedback() ([]store.UserFeedback, error)   { return nil, nil }
func (m *memPersistence) SaveFeedback([]store.UserFeedback) error      { return nil }

func newTestAgent(t *testing.T, name string) *BaseAgent {
	t.Helper()
	s := store.NewStore(newMemPersistence())
	return NewBaseAgent(name, s)
}

func TestEmitSuppressesOnlyAboveConfidenceThreshold(t *testing.T) {
	a := newTestAgent(t, "disks")
	ctx, err := store.NewContext(map[string]any{"disk": "/dev/sda"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, a.AddFeedbackWithContext(Feedback{AlertType: "smart_warning", Kind: store.FeedbackFalsePositive, Context: ctx}))
	}
	status := a.GetLearningStatus()
	assert.Equal(t, 1, status.Insights.PatternsLearned)
	assert.Equal(t, 0, status.Insights.ActivePatterns, "confidence 0.6 has not crossed the 0.7 suppression gate yet")

	out := a.Emit(Alert{Type: "smart_warning", Priority: PriorityHigh, Message: "disk failing", Context: ctx})
	assert.Equal(t, PriorityHigh, out.Priority, "below-threshold pattern must not suppress")

	for i := 0; i < 2; i++ {
		require.NoError(t, a.AddFeedbackWithContext(Feedback{AlertType: "smart_warning", Kind: store.FeedbackFalsePositive, Context: ctx}))
	}
	out = a.Emit(Alert{Type: "smart_warning", Priority: PriorityHigh, Message: "disk failing", Context: ctx})
	assert.Equal(t, PriorityInfo, out.Priority)
	assert.Contains(t, out.Message, "[Suppressed]")
}

func TestReceiveUserFeedbackAdjustsSensitivityWithinBounds(t *testing.T) {
	a := newTestAgent(t, "storage")

	for i := 0; i < 10; i++ {
		require.NoError(t, a.ReceiveUserFeedback(Feedback{AlertType: "capacity", Kind: store.FeedbackTooSensitive}))
	}
	assert.Equal(t, 4.0, a.sensitivityFor("capacity"), "sensitivity is capped at 4.0")

	for i := 0; i < 10; i++ {
		require.NoError(t, a.ReceiveUserFeedback(Feedback{AlertType: "capacity", Kind: store.FeedbackTooLate}))
	}
	assert.Equal(t, 1.0, a.sensitivityFor("capacity"), "sensitivity is floored at 1.0")
}
