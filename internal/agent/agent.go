// Package agent implements the learning-agent substrate shared by every
// domain agent: observation recording, anomaly/trend queries backed by
// the store, and suppression-aware alert emission driven by user
// feedback (spec.md §4.5).
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/nasguard/nasguard/internal/store"
)

// Priority ranks alert severity. Lower values are more severe, so a
// plain numeric sort ("sort ascending by Priority") produces the
// correct triage order.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
	PriorityInfo
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	case PriorityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Alert is one finding produced by a domain agent's Check. Category is
// the emitting agent's name; the orchestrator fills it in during
// aggregation so a domain agent never has to name itself.
type Alert struct {
	Type     string
	Priority Priority
	Message  string
	Category string
	Context  store.Context
}

// Feedback is the outcome a caller reports about a previously emitted
// alert, mirroring store.UserFeedback but scoped to a single agent
// instance (the agent name is implicit).
type Feedback struct {
	AlertType string
	Kind      store.FeedbackKind
	Context   store.Context
}

// suppressionConfidenceThreshold is the minimum pattern confidence at
// which a matching pattern actually suppresses an alert, rather than
// merely existing as a learned-but-not-yet-trusted candidate.
const suppressionConfidenceThreshold = 0.7

const (
	minSensitivity     = 1.0
	maxSensitivity     = 4.0
	sensitivityStep    = 0.5
	defaultSensitivity = store.DefaultSensitivity
)

// LearningStatus reports what an agent has learned so far, for
// diagnostics and the report surface.
type LearningStatus struct {
	Agent       string
	Insights    store.Insights
	Sensitivity map[string]float64
}

// BaseAgent is the capability set every domain agent embeds: it gives
// each agent observation recording, anomaly and trend detection, and
// feedback-driven alert suppression, all backed by the shared Store.
type BaseAgent struct {
	name  string
	store *store.Store

	sensitivity map[string]float64
}

// NewBaseAgent builds the learning substrate for a domain agent named
// name, backed by s.
func NewBaseAgent(name string, s *store.Store) *BaseAgent {
	return &BaseAgent{
		name:        name,
		store:       s,
		sensitivity: make(map[string]float64),
	}
}

// Name returns the agent's identity, used as the Agent field on every
// observation, pattern and feedback record it produces.
func (a *BaseAgent) Name() string { return a.name }

// Observe records a numeric metric sample.
func (a *BaseAgent) Observe(metric string, value float64, ctx store.Context) error {
	return a.store.RecordObservation(store.Observation{
		Agent: a.name, Metric: metric, Value: store.FloatValue(value),
		Timestamp: time.Now(), Context: ctx,
	})
}

// IsAnomaly reports whether value is anomalous for metric, at the
// agent's current sensitivity for alertType (or the default if none
// has been learned yet).
func (a *BaseAgent) IsAnomaly(metric, alertType string, value float64) bool {
	return a.store.IsAnomaly(a.name, metric, value, a.sensitivityFor(alertType))
}

// HasSufficientData reports whether metric has a baseline with at
// least store.MinSamplesForAnomaly samples.
func (a *BaseAgent) HasSufficientData(metric string) bool {
	b, ok := a.store.GetBaseline(a.name, metric)
	return ok && b.SampleCount >= store.MinSamplesForAnomaly
}

// Trend returns the direction of metric over the last days.
func (a *BaseAgent) Trend(metric string, days int) store.Trend {
	return a.store.GetTrend(a.name, metric, days)
}

// Baseline returns the current baseline for metric, if any.
func (a *BaseAgent) Baseline(metric string) (store.Baseline, bool) {
	return a.store.GetBaseline(a.name, metric)
}

// FalsePositiveRate returns the fraction of past feedback for alertType
// that was marked a false positive, for threshold adaptation.
func (a *BaseAgent) FalsePositiveRate(alertType string) float64 {
	return a.store.GetFalsePositiveRate(a.name, alertType)
}

func (a *BaseAgent) sensitivityFor(alertType string) float64 {
	if s, ok := a.sensitivity[alertType]; ok {
		return s
	}
	return defaultSensitivity
}

// shouldSuppress reports whether any pattern matching alertType/ctx has
// reached the trust threshold to suppress the alert, and triggers the
// winning pattern so its occurrence count reflects the suppression.
func (a *BaseAgent) shouldSuppress(alertType string, ctx store.Context) (store.Pattern, bool) {
	for _, p := range a.store.GetPatterns(a.name) {
		if p.Action != store.ActionIgnore {
			continue
		}
		if p.Confidence < suppressionConfidenceThreshold {
			continue
		}
		if !ctx.Matches(p.Condition) {
			continue
		}
		_ = a.store.TriggerPattern(a.name, p.Name)
		return p, true
	}
	return store.Pattern{}, false
}

// Emit applies suppression learned from past feedback to alert and
// returns the (possibly downgraded) alert to report. A suppressed
// alert is never dropped: its priority is downgraded to info and its
// message gains a "[Suppressed] " prefix, per spec.md §4.4.
func (a *BaseAgent) Emit(alert Alert) Alert {
	if alert.Context == nil {
		alert.Context = store.Context{}
	}
	if _, suppressed := a.shouldSuppress(alert.Type, alert.Context); suppressed {
		alert.Priority = PriorityInfo
		alert.Message = "[Suppressed] " + alert.Message
	}
	return alert
}

// AddFeedbackWithContext records feedback tied to alertType/ctx and
// lets the store auto-learn a suppression pattern from it.
func (a *BaseAgent) AddFeedbackWithContext(f Feedback) error {
	return a.store.RecordFeedback(store.UserFeedback{
		Agent: a.name, AlertType: f.AlertType, Feedback: f.Kind, Context: f.Context,
	})
}

// ReceiveUserFeedback applies sensitivity-adjustment feedback in
// addition to recording it: too_sensitive raises the threshold
// (fewer future alerts), too_late lowers it (more future alerts),
// clamped to [1.0, 4.0] (spec.md §4.5).
func (a *BaseAgent) ReceiveUserFeedback(f Feedback) error {
	if err := a.AddFeedbackWithContext(f); err != nil {
		return err
	}

	current := a.sensitivityFor(f.AlertType)
	switch f.Kind {
	case store.FeedbackTooSensitive:
		current += sensitivityStep
	case store.FeedbackTooLate:
		current -= sensitivityStep
	default:
		return nil
	}
	if current > maxSensitivity {
		current = maxSensitivity
	}
	if current < minSensitivity {
		current = minSensitivity
	}
	a.sensitivity[f.AlertType] = current
	return nil
}

// GetLearningStatus summarizes what this agent has learned.
func (a *BaseAgent) GetLearningStatus() LearningStatus {
	sens := make(map[string]float64, len(a.sensitivity))
	for k, v := range a.sensitivity {
		sens[k] = v
	}
	return LearningStatus{
		Agent:       a.name,
		Insights:    a.store.GetInsights(a.name),
		Sensitivity: sens,
	}
}

// Agent is the uniform capability set the orchestrator drives: every
// domain agent runs a health Check and can absorb feedback about its
// own past alerts.
type Agent interface {
	Name() string
	Check(ctx context.Context) ([]Alert, error)
	AddFeedbackWithContext(f Feedback) error
	ReceiveUserFeedback(f Feedback) error
	GetLearningStatus() LearningStatus
}

// ErrCheckPanicked wraps a recovered panic from an agent's Check, so
// the orchestrator can report it as an ordinary error rather than
// crash the whole run.
type ErrCheckPanicked struct {
	Agent string
	Value any
}

func (e *ErrCheckPanicked) Error() string {
	return fmt.Sprintf("agent %s: check panicked: %v", e.Agent, e.Value)
}
