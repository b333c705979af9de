package store

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersistence struct {
	observations []Observation
	baselines    map[string]*Baseline
	patterns     map[string]*Pattern
	feedback     []UserFeedback
}

func newMemPersistence() *memPersistence {
	return &memPersistence{
		baselines: make(map[string]*Baseline),
		patterns:  make(map[string]*Pattern),
	}
}

func (m *memPersistence) LoadObservations() ([]Observation, error) { return m.observations, nil }
func (m *memPersistence) SaveObservations(o []Observation) error   { m.observations = o; return nil }
func (m *memPersistence) LoadBaselines() (map[string]*Baseline, error) {
	return m.baselines, nil
}
func (m *memPersistence) SaveBaselines(b map[string]*Baseline) error { m.baselines = b; return nil }
func (m *memPersistence) LoadPatterns() (map[string]*Pattern, error) {
	return m.patterns, nil
}
func (m *memPersistence) SavePatterns(p map[string]*Pattern) error { m.patterns = p; return nil }
func (m *memPersistence) LoadFeedback() ([]UserFeedback, error)   { return m.feedback, nil }
func (m *memPersistence) SaveFeedback(f []UserFeedback) error     { m.feedback = f; return nil }

func newTestStore() *Store {
	return NewStore(newMemPersistence())
}

func obsAt(agent, metric string, value float64, ts time.Time) Observation {
	return Observation{Agent: agent, Metric: metric, Value: FloatValue(value), Timestamp: ts}
}

func TestBaselineWelfordMatchesTextbookMoments(t *testing.T) {
	s := newTestStore()
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		require.NoError(t, s.RecordObservation(obsAt("disks", "temp", v, base.Add(time.Duration(i)*time.Minute))))
	}

	b, ok := s.GetBaseline("disks", "temp")
	require.True(t, ok)
	assert.Equal(t, len(values), b.SampleCount)
	assert.InDelta(t, 5.0, b.Mean, 1e-9)
	assert.InDelta(t, 2.0, b.StdDev, 1e-9) // population std dev
	assert.Equal(t, 2.0, b.MinValue)
	assert.Equal(t, 9.0, b.MaxValue)
}

func TestIsAnomalyRequiresMinimumSamples(t *testing.T) {
	s := newTestStore()
	base := time.Now()
	for i := 0; i < 9; i++ {
		require.NoError(t, s.RecordObservation(obsAt("storage", "pct_used", 50, base.Add(time.Duration(i)*time.Minute))))
	}
	assert.False(t, s.IsAnomaly("storage", "pct_used", 99, DefaultSensitivity), "fewer than 10 samples must never flag")

	require.NoError(t, s.RecordObservation(obsAt("storage", "pct_used", 50, base.Add(9*time.Minute))))
	assert.False(t, s.IsAnomaly("storage", "pct_used", 50, DefaultSensitivity), "identical value with zero stddev is not anomalous")
	assert.True(t, s.IsAnomaly("storage", "pct_used", 51, DefaultSensitivity), "any deviation with zero stddev is anomalous")
}

func TestIsAnomalyBoundaryIsStrictlyGreaterThan(t *testing.T) {
	s := newTestStore()
	base := time.Now()
	values := []float64{8, 9, 10, 11, 12, 8, 9, 10, 11, 12}
	for i, v := range values {
		require.NoError(t, s.RecordObservation(obsAt("backup", "duration", v, base.Add(time.Duration(i)*time.Minute))))
	}
	b, ok := s.GetBaseline("backup", "duration")
	require.True(t, ok)

	atBoundary := b.Mean + DefaultSensitivity*b.StdDev
	assert.False(t, s.IsAnomaly("backup", "duration", atBoundary, DefaultSensitivity), "z == sensitivity is not anomalous")
	assert.True(t, s.IsAnomaly("backup", "duration", atBoundary+0.01, DefaultSensitivity))
}

func TestGetTrendUnknownWithFewerThanTwoPoints(t *testing.T) {
	s := newTestStore()
	assert.Equal(t, TrendUnknown, s.GetTrend("disks", "temp", 7))

	require.NoError(t, s.RecordObservation(obsAt("disks", "temp", 40, time.Now())))
	assert.Equal(t, TrendUnknown, s.GetTrend("disks", "temp", 7))
}

func TestGetTrendScenarioS5Increasing(t *testing.T) {
	s := newTestStore()
	values := []float64{10, 10, 10, 10, 10, 20, 20, 20, 20, 20}
	base := time.Now().Add(-9 * 24 * time.Hour)
	for i, v := range values {
		require.NoError(t, s.RecordObservation(obsAt("storage", "pct_used", v, base.Add(time.Duration(i)*24*time.Hour))))
	}
	assert.Equal(t, TrendIncreasing, s.GetTrend("storage", "pct_used", 10))
}

func TestGetTrendStableWithinTenPercentBand(t *testing.T) {
	s := newTestStore()
	values := []float64{50, 51, 49, 50, 52, 50}
	base := time.Now().Add(-5 * 24 * time.Hour)
	for i, v := range values {
		require.NoError(t, s.RecordObservation(obsAt("storage", "pct_used", v, base.Add(time.Duration(i)*24*time.Hour))))
	}
	assert.Equal(t, TrendStable, s.GetTrend("storage", "pct_used", 7))
}

func TestRecordFeedbackFalsePositiveAutoLearnsSuppressionPattern(t *testing.T) {
	s := newTestStore()
	ctx, err := NewContext(map[string]any{"disk": "/dev/sda"})
	require.NoError(t, err)

	require.NoError(t, s.RecordFeedback(UserFeedback{
		Agent: "disks", AlertType: "smart_warning", Feedback: FeedbackFalsePositive, Context: ctx,
	}))

	p, ok := s.GetPattern("disks", "suppress_smart_warning")
	require.True(t, ok)
	assert.Equal(t, 0.5, p.Confidence)
	assert.Equal(t, ActionIgnore, p.Action)
	assert.Equal(t, 1, p.Occurrences)
}

func TestRecordFeedbackScenarioS4ReinforcesUpToCap(t *testing.T) {
	s := newTestStore()
	ctx, err := NewContext(map[string]any{"disk": "/dev/sda"})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, s.RecordFeedback(UserFeedback{
			Agent: "disks", AlertType: "smart_warning", Feedback: FeedbackFalsePositive, Context: ctx,
		}))
	}

	p, ok := s.GetPattern("disks", "suppress_smart_warning")
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Confidence, "confidence ramps by 0.1 per reinforcement and is capped at 1.0")
	assert.Equal(t, 6, p.Occurrences)
}

func TestContextMatchesIgnoresExtraKeys(t *testing.T) {
	cond, err := NewContext(map[string]any{"disk": "/dev/sda"})
	require.NoError(t, err)
	ctx, err := NewContext(map[string]any{"disk": "/dev/sda", "pool": "volume1"})
	require.NoError(t, err)

	assert.True(t, ctx.Matches(cond))

	other, err := NewContext(map[string]any{"disk": "/dev/sdb"})
	require.NoError(t, err)
	assert.False(t, other.Matches(cond))
}

func TestGetFalsePositiveRate(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.RecordFeedback(UserFeedback{Agent: "logs", AlertType: "error_spike", Feedback: FeedbackFalsePositive}))
	require.NoError(t, s.RecordFeedback(UserFeedback{Agent: "logs", AlertType: "error_spike", Feedback: FeedbackUseful}))
	require.NoError(t, s.RecordFeedback(UserFeedback{Agent: "logs", AlertType: "error_spike", Feedback: FeedbackUseful}))

	assert.InDelta(t, 1.0/3.0, s.GetFalsePositiveRate("logs", "error_spike"), 1e-9)
	assert.Equal(t, 0.0, s.GetFalsePositiveRate("logs", "unknown_type"))
}

func TestGetInsightsCountsLearnedState(t *testing.T) {
	s := newTestStore()
	base := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordObservation(obsAt("disks", "temp", 40, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.AddPattern(Pattern{Agent: "disks", Name: "suppress_x", Confidence: 0.9}))
	require.NoError(t, s.AddPattern(Pattern{Agent: "disks", Name: "suppress_y", Confidence: 0.4}))

	insights := s.GetInsights("disks")
	assert.Equal(t, 1, insights.BaselinesLearned)
	assert.Equal(t, 2, insights.PatternsLearned)
	assert.Equal(t, 1, insights.ActivePatterns)
	assert.Equal(t, 10, insights.TotalObservations)
}

func TestPersistenceRoundTripsThroughFileBackend(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePersistence(dir)
	s := NewStore(p)

	base := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordObservation(obsAt("disks", "temp", float64(40+i), base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.RecordFeedback(UserFeedback{Agent: "disks", AlertType: "smart_warning", Feedback: FeedbackFalsePositive}))

	reopened := NewStore(NewFilePersistence(dir))
	b, ok := reopened.GetBaseline("disks", "temp")
	require.True(t, ok)
	assert.Equal(t, 10, b.SampleCount)

	_, ok = reopened.GetPattern("disks", "suppress_smart_warning")
	assert.True(t, ok)
}

func TestCorruptCollectionFileLoadsEmptyNotFatal(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePersistence(dir).(*filePersistence)
	require.NoError(t, os.WriteFile(p.path("baselines.json"), []byte("{not json"), 0o600))

	s := NewStore(p)
	_, ok := s.GetBaseline("disks", "temp")
	assert.False(t, ok)
}
