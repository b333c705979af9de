package agents

import (
	"context"
	"fmt"

	"github.com/nasguard/nasguard/internal/agent"
	"github.com/nasguard/nasguard/internal/appliance"
	"github.com/nasguard/nasguard/internal/store"
)

const (
	diskTempCritical = 60.0
	diskTempWarning  = 50.0
	diskTempLow      = 15.0

	diskBadSectorsCritical = 100

	diskAgeMediumYears = 5.0
	diskAgeLowYears    = 3.0
	hoursPerYear       = 24 * 365
)

// DisksAgent watches SMART health, temperature and wear of individual
// drives.
type DisksAgent struct {
	*agent.BaseAgent
	client appliance.Client
}

func NewDisksAgent(s *store.Store, client appliance.Client) *DisksAgent {
	return &DisksAgent{BaseAgent: agent.NewBaseAgent("disks", s), client: client}
}

func (a *DisksAgent) Check(ctx context.Context) ([]agent.Alert, error) {
	disks, err := a.client.Disks(ctx)
	if err != nil {
		return nil, fmt.Errorf("disks: fetch disks: %w", err)
	}

	var alerts []agent.Alert
	for _, d := range disks {
		diskAlerts, err := a.checkDisk(d)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, diskAlerts...)
	}
	return alerts, nil
}

func (a *DisksAgent) checkDisk(d appliance.Disk) ([]agent.Alert, error) {
	diskCtx, _ := store.NewContext(map[string]any{"disk": d.ID})

	tempMetric := "temp_" + d.ID
	sectorsMetric := "bad_sectors_" + d.ID

	if d.TempCelsius > 0 {
		if err := a.Observe(tempMetric, d.TempCelsius, diskCtx); err != nil {
			return nil, fmt.Errorf("disks: observe temp %s: %w", d.ID, err)
		}
	}
	if err := a.Observe(sectorsMetric, float64(d.BadSectorCount), diskCtx); err != nil {
		return nil, fmt.Errorf("disks: observe bad sectors %s: %w", d.ID, err)
	}

	if d.Status == "failed" || d.Status == "crashed" {
		return []agent.Alert{{
			Type: "disk_failed", Priority: agent.PriorityCritical,
			Message: fmt.Sprintf("disk %s has FAILED, replace immediately", d.ID), Context: diskCtx,
		}}, nil
	}

	var alerts []agent.Alert
	healthy := true

	if d.Status == "warning" {
		healthy = false
		alerts = append(alerts, a.Emit(agent.Alert{
			Type: "disk_warning", Priority: agent.PriorityHigh,
			Message: fmt.Sprintf("disk %s showing warnings, monitor closely", d.ID), Context: diskCtx,
		}))
	}

	switch d.SmartStatus {
	case "failing":
		return append(alerts, agent.Alert{
			Type: "smart_failing", Priority: agent.PriorityCritical,
			Message: fmt.Sprintf("disk %s S.M.A.R.T. predicting failure, replace as soon as possible", d.ID),
			Context: diskCtx,
		}), nil
	case "warning":
		healthy = false
		alerts = append(alerts, a.Emit(agent.Alert{
			Type: "smart_warning", Priority: agent.PriorityHigh,
			Message: fmt.Sprintf("disk %s reports SMART warnings", d.ID), Context: diskCtx,
		}))
	}

	if alert, ok := a.checkTemperature(d.ID, tempMetric, d.TempCelsius); ok {
		healthy = false
		alerts = append(alerts, alert)
	}
	if alert, ok := a.checkBadSectors(d.ID, sectorsMetric, d.BadSectorCount); ok {
		healthy = false
		alerts = append(alerts, alert)
	}
	if alert, ok := checkDiskWear(d.ID, d.PowerOnHours); ok {
		alerts = append(alerts, alert)
	}

	if healthy {
		alerts = append(alerts, agent.Alert{
			Type: "disk_ok", Priority: agent.PriorityLow,
			Message: fmt.Sprintf("disk %s is healthy", d.ID), Context: diskCtx,
		})
	}
	return alerts, nil
}

// diskTempThresholds is the critical/warning/low banding for a disk's
// temperature, widened or narrowed once its normal operating range is
// known.
type diskTempThresholds struct {
	critical, warning, low float64
}

// checkTemperature bands the current temperature against thresholds
// learned from this disk's own history once at least 20 samples are
// on record, so a drive that normally runs warm isn't flagged for
// being exactly that.
func (a *DisksAgent) checkTemperature(diskID, tempMetric string, temp float64) (agent.Alert, bool) {
	if temp <= 0 {
		return agent.Alert{}, false
	}

	thresholds := diskTempThresholds{critical: diskTempCritical, warning: diskTempWarning, low: diskTempLow}
	if baseline, ok := a.Baseline(tempMetric); ok && baseline.SampleCount >= 20 {
		if baseline.Mean > 40 {
			thresholds.warning = max(50, baseline.Mean+10)
			thresholds.critical = max(60, baseline.Mean+15)
		}
		if baseline.Mean > 30 {
			thresholds.low = max(15, baseline.Mean-15)
		}
	}

	ctx, _ := store.NewContext(map[string]any{"disk": diskID, "temp": temp})
	switch {
	case temp >= thresholds.critical:
		return a.Emit(agent.Alert{
			Type: "disk_temp_critical", Priority: agent.PriorityCritical,
			Message: fmt.Sprintf("disk %s overheating: %.1f°C", diskID, temp), Context: ctx,
		}), true
	case temp >= thresholds.warning:
		return a.Emit(agent.Alert{
			Type: "disk_temp_high", Priority: agent.PriorityHigh,
			Message: fmt.Sprintf("disk %s running hot: %.1f°C", diskID, temp), Context: ctx,
		}), true
	case temp <= thresholds.low:
		return a.Emit(agent.Alert{
			Type: "disk_temp_low", Priority: agent.PriorityMedium,
			Message: fmt.Sprintf("disk %s running cold: %.1f°C", diskID, temp), Context: ctx,
		}), true
	}

	if a.HasSufficientData(tempMetric) && a.IsAnomaly(tempMetric, "disk_temp_anomaly", temp) {
		if baseline, ok := a.Baseline(tempMetric); ok {
			direction := "higher"
			if temp < baseline.Mean {
				direction = "lower"
			}
			return a.Emit(agent.Alert{
				Type: "disk_temp_anomaly", Priority: agent.PriorityMedium,
				Message: fmt.Sprintf("disk %s temperature anomaly: %.1f°C (%s than usual)", diskID, temp, direction),
				Context: ctx,
			}), true
		}
	}
	return agent.Alert{}, false
}

// checkBadSectors bands the bad-sector count and escalates to
// critical when the count itself is on an increasing trend, since
// growing sector failures are far more urgent than a stable count.
func (a *DisksAgent) checkBadSectors(diskID, sectorsMetric string, count int64) (agent.Alert, bool) {
	if count <= 0 {
		return agent.Alert{}, false
	}

	ctx, _ := store.NewContext(map[string]any{"disk": diskID, "bad_sectors": count})
	if count > diskBadSectorsCritical {
		return a.Emit(agent.Alert{
			Type: "bad_sectors_critical", Priority: agent.PriorityCritical,
			Message: fmt.Sprintf("disk %s has %d bad sectors, replacement recommended", diskID, count),
			Context: ctx,
		}), true
	}

	priority := agent.PriorityHigh
	suffix := ""
	if a.Trend(sectorsMetric, 7) == store.TrendIncreasing {
		priority = agent.PriorityCritical
		suffix = " (increasing!)"
	}
	return a.Emit(agent.Alert{
		Type: "bad_sectors_warning", Priority: priority,
		Message: fmt.Sprintf("disk %s has %d bad sectors%s", diskID, count, suffix),
		Context: ctx,
	}), true
}

// checkDiskWear reports a disk's age against typical HDD lifespan,
// giving an early low-priority heads-up at 3 years and a stronger
// nudge to replace proactively at 5.
func checkDiskWear(diskID string, powerOnHours int64) (agent.Alert, bool) {
	if powerOnHours <= 0 {
		return agent.Alert{}, false
	}
	years := float64(powerOnHours) / hoursPerYear

	switch {
	case years >= diskAgeMediumYears:
		ctx, _ := store.NewContext(map[string]any{"disk": diskID, "years": years})
		return agent.Alert{
			Type: "disk_age_warning", Priority: agent.PriorityMedium,
			Message: fmt.Sprintf("disk %s is %.1f years old, consider proactive replacement", diskID, years),
			Context: ctx,
		}, true
	case years >= diskAgeLowYears:
		return agent.Alert{
			Type: "disk_age_notice", Priority: agent.PriorityLow,
			Message: fmt.Sprintf("disk %s approaching typical lifespan (%.1f years)", diskID, years),
		}, true
	default:
		return agent.Alert{}, false
	}
}
