package store

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultSensitivity is the z-score threshold used when a caller does
// not override it, per spec.md §4.2.
const DefaultSensitivity = 2.0

// MinSamplesForAnomaly is the minimum baseline sample count before
// IsAnomaly will report anything other than false.
const MinSamplesForAnomaly = 10

// RetentionWindow bounds how long raw observations are kept; anything
// older is dropped the next time observations are saved.
const RetentionWindow = 30 * 24 * time.Hour

func baselineKey(agent, metric string) string { return agent + ":" + metric }
func patternKey(agent, name string) string    { return agent + ":" + name }

// Store is the durable, per-device substrate shared by every domain
// agent: observations, online baselines, suppression patterns and
// user feedback, behind a single mutex so concurrent agent goroutines
// never corrupt shared state (spec.md §5).
type Store struct {
	mu sync.Mutex

	persistence Persistence

	observations []Observation
	baselines    map[string]*Baseline
	patterns     map[string]*Pattern
	feedback     []UserFeedback

	now func() time.Time
}

// NewStore opens (or creates) the store rooted at persistence. Any
// collection whose file is missing or corrupt loads as empty rather
// than failing - corruption is logged and the store continues, per
// spec.md §7.
func NewStore(persistence Persistence) *Store {
	s := &Store{
		persistence: persistence,
		baselines:   make(map[string]*Baseline),
		patterns:    make(map[string]*Pattern),
		now:         time.Now,
	}

	if obs, err := persistence.LoadObservations(); err != nil {
		log.Warn().Err(err).Msg("store: failed to load observations, starting empty")
	} else {
		s.observations = obs
	}

	if baselines, err := persistence.LoadBaselines(); err != nil {
		log.Warn().Err(err).Msg("store: failed to load baselines, starting empty")
	} else if baselines != nil {
		s.baselines = baselines
	}

	if patterns, err := persistence.LoadPatterns(); err != nil {
		log.Warn().Err(err).Msg("store: failed to load patterns, starting empty")
	} else if patterns != nil {
		s.patterns = patterns
	}

	if fb, err := persistence.LoadFeedback(); err != nil {
		log.Warn().Err(err).Msg("store: failed to load feedback, starting empty")
	} else {
		s.feedback = fb
	}

	return s
}

// RecordObservation appends obs and, for numeric values, updates the
// (agent, metric) baseline using Welford's algorithm. The write is
// synchronous: once this returns nil, the data has been persisted.
func (s *Store) RecordObservation(obs Observation) error {
	if obs.Timestamp.IsZero() {
		obs.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.observations = append(s.observations, obs)
	s.pruneObservationsLocked()

	if err := s.persistence.SaveObservations(s.observations); err != nil {
		return err
	}

	if value, ok := obs.Float64(); ok {
		s.updateBaselineLocked(obs.Agent, obs.Metric, value)
		if err := s.persistence.SaveBaselines(s.baselines); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) pruneObservationsLocked() {
	cutoff := s.now().Add(-RetentionWindow)
	kept := s.observations[:0]
	for _, o := range s.observations {
		if o.Timestamp.After(cutoff) {
			kept = append(kept, o)
		}
	}
	s.observations = kept
}

// updateBaselineLocked applies the Welford update from spec.md §4.1.
// The divisor is n (not n-1): StdDev is the population standard
// deviation, which is a normative part of the contract.
func (s *Store) updateBaselineLocked(agent, metric string, value float64) {
	key := baselineKey(agent, metric)
	b, exists := s.baselines[key]
	if !exists {
		s.baselines[key] = &Baseline{
			Agent: agent, Metric: metric,
			Mean: value, StdDev: 0,
			MinValue: value, MaxValue: value,
			SampleCount: 1, LastUpdated: s.now(),
		}
		return
	}

	n := b.SampleCount + 1
	delta := value - b.Mean
	newMean := b.Mean + delta/float64(n)
	delta2 := value - newMean

	var variance float64
	if n > 1 {
		variance = (b.StdDev*b.StdDev*float64(b.SampleCount) + delta*delta2) / float64(n)
	}

	b.Mean = newMean
	b.StdDev = math.Sqrt(variance)
	if value < b.MinValue {
		b.MinValue = value
	}
	if value > b.MaxValue {
		b.MaxValue = value
	}
	b.SampleCount = n
	b.LastUpdated = s.now()
}

// GetObservations returns observations for (agent, metric) ascending
// by timestamp, optionally filtered to those strictly after since.
func (s *Store) GetObservations(agent, metric string, since *time.Time) []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Observation
	for _, o := range s.observations {
		if o.Agent != agent || o.Metric != metric {
			continue
		}
		if since != nil && !o.Timestamp.After(*since) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// GetBaseline returns the current baseline for (agent, metric), if any.
func (s *Store) GetBaseline(agent, metric string) (Baseline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.baselines[baselineKey(agent, metric)]
	if !ok {
		return Baseline{}, false
	}
	return *b, true
}

// IsAnomaly reports whether value is anomalous for (agent, metric) at
// the given sensitivity. It returns false whenever no baseline exists
// or the baseline has fewer than MinSamplesForAnomaly samples,
// regardless of sensitivity (spec.md §4.1, §8 property 8).
func (s *Store) IsAnomaly(agent, metric string, value, sensitivity float64) bool {
	b, ok := s.GetBaseline(agent, metric)
	if !ok || b.SampleCount < MinSamplesForAnomaly {
		return false
	}
	return b.IsAnomaly(value, sensitivity)
}

// AddPattern upserts a pattern keyed by (agent, name).
func (s *Store) AddPattern(p Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	stored := p
	s.patterns[patternKey(p.Agent, p.Name)] = &stored
	return s.persistence.SavePatterns(s.patterns)
}

// GetPatterns returns every pattern owned by agent.
func (s *Store) GetPatterns(agent string) []Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Pattern
	for _, p := range s.patterns {
		if p.Agent == agent {
			out = append(out, *p)
		}
	}
	return out
}

// GetPattern returns a single pattern by (agent, name).
func (s *Store) GetPattern(agent, name string) (Pattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[patternKey(agent, name)]
	if !ok {
		return Pattern{}, false
	}
	return *p, true
}

// TriggerPattern bumps occurrences and LastTriggered for (agent, name).
// It is a no-op (not an error) if the pattern does not exist.
func (s *Store) TriggerPattern(agent, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[patternKey(agent, name)]
	if !ok {
		return nil
	}
	p.Occurrences++
	now := s.now()
	p.LastTriggered = &now
	return s.persistence.SavePatterns(s.patterns)
}

// RecordFeedback appends fb and triggers auto-learn from
// false_positive feedback, per spec.md §4.1.
func (s *Store) RecordFeedback(fb UserFeedback) error {
	if fb.Timestamp.IsZero() {
		fb.Timestamp = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.feedback = append(s.feedback, fb)
	if err := s.persistence.SaveFeedback(s.feedback); err != nil {
		return err
	}

	if fb.Feedback == FeedbackFalsePositive {
		return s.learnFromFalsePositiveLocked(fb)
	}
	return nil
}

// learnFromFalsePositiveLocked implements the auto-learn rule: the
// first false_positive for an (agent, alert_type) eagerly creates a
// suppression pattern at confidence 0.5; subsequent ones reinforce it
// by +0.1 (capped at 1.0) without overwriting the original condition.
func (s *Store) learnFromFalsePositiveLocked(fb UserFeedback) error {
	name := "suppress_" + fb.AlertType
	key := patternKey(fb.Agent, name)

	if existing, ok := s.patterns[key]; ok {
		// Rounded to one decimal so the +0.1 steps land exactly on
		// 0.6, 0.7, ... 1.0 instead of drifting below them.
		existing.Confidence = math.Min(1.0, math.Round((existing.Confidence+0.1)*10)/10)
		existing.Occurrences++
	} else {
		s.patterns[key] = &Pattern{
			Agent:       fb.Agent,
			Name:        name,
			Description: "auto-learned: suppress " + fb.AlertType + " alerts",
			Condition:   fb.Context,
			Action:      ActionIgnore,
			Confidence:  0.5,
			Occurrences: 1,
			CreatedAt:   s.now(),
		}
	}
	return s.persistence.SavePatterns(s.patterns)
}

// GetFalsePositiveRate returns the fraction of recorded feedback for
// (agent, alertType) whose kind is false_positive, or 0 if there is no
// matching feedback at all.
func (s *Store) GetFalsePositiveRate(agent, alertType string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total, falsePositives int
	for _, f := range s.feedback {
		if f.Agent != agent || f.AlertType != alertType {
			continue
		}
		total++
		if f.Feedback == FeedbackFalsePositive {
			falsePositives++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(falsePositives) / float64(total)
}

// Trend enumerates the direction get_trend reports.
type Trend string

const (
	TrendUnknown    Trend = "unknown"
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// GetTrend computes the split-mean trend for (agent, metric) over the
// last days, per spec.md §4.3.
func (s *Store) GetTrend(agent, metric string, days int) Trend {
	since := s.now().AddDate(0, 0, -days)
	observations := s.GetObservations(agent, metric, &since)

	var values []float64
	for _, o := range observations {
		if v, ok := o.Float64(); ok {
			values = append(values, v)
		}
	}
	if len(values) < 2 {
		return TrendUnknown
	}

	mid := len(values) / 2
	firstHalf := values[:mid]
	secondHalf := values[mid:]

	mean1 := mean(firstHalf)
	mean2 := mean(secondHalf)

	var diffPct float64
	if mean1 != 0 {
		diffPct = (mean2 - mean1) / mean1 * 100
	}

	switch {
	case diffPct > 10:
		return TrendIncreasing
	case diffPct < -10:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// GetInsights summarizes what has been learned for agent.
func (s *Store) GetInsights(agent string) Insights {
	s.mu.Lock()
	defer s.mu.Unlock()

	var insights Insights
	for key, b := range s.baselines {
		if b.Agent == agent {
			_ = key
			insights.BaselinesLearned++
		}
	}
	for _, p := range s.patterns {
		if p.Agent != agent {
			continue
		}
		insights.PatternsLearned++
		if p.Confidence >= 0.7 {
			insights.ActivePatterns++
		}
	}
	for _, o := range s.observations {
		if o.Agent == agent {
			insights.TotalObservations++
		}
	}
	return insights
}
