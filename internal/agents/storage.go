// Package agents implements the six domain agents that observe one
// facet of the appliance each and turn appliance state into alerts,
// all sharing the learning substrate in internal/agent.
package agents

import (
	"context"
	"fmt"

	"github.com/nasguard/nasguard/internal/agent"
	"github.com/nasguard/nasguard/internal/appliance"
	"github.com/nasguard/nasguard/internal/store"
)

const (
	storageCriticalPct = 95.0
	storageHighPct     = 90.0
	storageWarningPct  = 80.0

	storageWarningFPCap = 85.0
	storageHighFPCap    = 92.0
)

// StorageAgent watches volume capacity and storage pool redundancy.
type StorageAgent struct {
	*agent.BaseAgent
	client appliance.Client
}

func NewStorageAgent(s *store.Store, client appliance.Client) *StorageAgent {
	return &StorageAgent{BaseAgent: agent.NewBaseAgent("storage", s), client: client}
}

// storageThresholds is the critical/high/warning banding used for a
// volume's capacity, widened by learned false-positive rates.
type storageThresholds struct {
	critical, high, warning float64
}

func (a *StorageAgent) adjustedThresholds() storageThresholds {
	t := storageThresholds{critical: storageCriticalPct, high: storageHighPct, warning: storageWarningPct}

	if a.FalsePositiveRate("storage_warning") > 0.3 {
		t.warning = min(storageWarningFPCap, t.warning+5)
	}
	if a.FalsePositiveRate("storage_high") > 0.3 {
		t.high = min(storageHighFPCap, t.high+2)
	}
	return t
}

func (a *StorageAgent) Check(ctx context.Context) ([]agent.Alert, error) {
	volumes, err := a.client.Volumes(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch volumes: %w", err)
	}
	pools, err := a.client.StoragePools(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch pools: %w", err)
	}

	var alerts []agent.Alert

	for _, v := range volumes {
		if v.Size.Total == 0 {
			continue
		}

		pct := v.PercentUsed()
		freeGB := float64(v.Size.Total-v.Size.Used) / (1024 * 1024 * 1024)
		usedGB := float64(v.Size.Used) / (1024 * 1024 * 1024)

		volCtx, _ := store.NewContext(map[string]any{"volume": v.ID, "usage_percent": pct})

		pctMetric := "usage_percent_" + v.ID
		gbMetric := "used_gb_" + v.ID
		if err := a.Observe(pctMetric, pct, volCtx); err != nil {
			return nil, fmt.Errorf("storage: observe volume %s: %w", v.ID, err)
		}
		if err := a.Observe(gbMetric, usedGB, volCtx); err != nil {
			return nil, fmt.Errorf("storage: observe volume %s: %w", v.ID, err)
		}

		if alert, ok := a.checkGrowthAnomaly(v.ID, gbMetric, usedGB); ok {
			alerts = append(alerts, alert)
		}

		thresholds := a.adjustedThresholds()

		switch {
		case pct >= thresholds.critical:
			alerts = append(alerts, a.Emit(agent.Alert{
				Type: "storage_critical", Priority: agent.PriorityCritical,
				Message: fmt.Sprintf("volume %s critically low on space: %.1f%% used", v.ID, pct),
				Context: volCtx,
			}))
		case pct >= thresholds.high:
			alerts = append(alerts, a.Emit(agent.Alert{
				Type: "storage_high", Priority: agent.PriorityHigh,
				Message: fmt.Sprintf("volume %s running low on space: %.1f%% used", v.ID, pct),
				Context: volCtx,
			}))
		case pct >= thresholds.warning:
			alerts = append(alerts, a.Emit(agent.Alert{
				Type: "storage_warning", Priority: agent.PriorityMedium,
				Message: fmt.Sprintf("volume %s at %.1f%% capacity", v.ID, pct),
				Context: volCtx,
			}))
		default:
			alerts = append(alerts, agent.Alert{
				Type: "storage_ok", Priority: agent.PriorityLow,
				Message: fmt.Sprintf("volume %s healthy: %.1f%% used", v.ID, pct), Context: volCtx,
			})
		}

		if alert, ok := a.predictFull(v.ID, gbMetric, freeGB); ok {
			alerts = append(alerts, alert)
		}

		if alert, ok := checkVolumeStatus(v); ok {
			alerts = append(alerts, alert)
		}
	}

	for _, p := range pools {
		poolCtx, _ := store.NewContext(map[string]any{"pool": p.ID, "raid_type": p.RaidType})
		if p.Degraded {
			alerts = append(alerts, a.Emit(agent.Alert{
				Type: "pool_degraded", Priority: agent.PriorityCritical,
				Message: fmt.Sprintf("storage pool %s (%s) is degraded", p.ID, p.RaidType), Context: poolCtx,
			}))
		}
	}

	return alerts, nil
}

// checkGrowthAnomaly flags a volume's absolute usage as an unusual
// growth spike when it is both anomalous and above its learned mean.
func (a *StorageAgent) checkGrowthAnomaly(volID, gbMetric string, usedGB float64) (agent.Alert, bool) {
	if !a.HasSufficientData(gbMetric) || !a.IsAnomaly(gbMetric, "storage_growth_anomaly", usedGB) {
		return agent.Alert{}, false
	}
	baseline, ok := a.Baseline(gbMetric)
	if !ok || usedGB <= baseline.Mean {
		return agent.Alert{}, false
	}
	growth := usedGB - baseline.Mean
	ctx, _ := store.NewContext(map[string]any{"volume": volID, "growth_gb": growth})
	return a.Emit(agent.Alert{
		Type: "storage_growth_anomaly", Priority: agent.PriorityHigh,
		Message: fmt.Sprintf("unusual storage growth on %s: +%.1f GB above normal", volID, growth),
		Context: ctx,
	}), true
}

// predictFull estimates time-to-full from the volume's observed
// variability (free_gb/std_dev, the same heuristic the appliance's
// original monitor used) and bands the result the way a human would
// read days-until-full: under a week is critical, under a month is
// worth a high-priority heads-up.
func (a *StorageAgent) predictFull(volID, gbMetric string, freeGB float64) (agent.Alert, bool) {
	if !a.HasSufficientData(gbMetric) || a.Trend(gbMetric, 7) != store.TrendIncreasing {
		return agent.Alert{}, false
	}
	baseline, ok := a.Baseline(gbMetric)
	if !ok || baseline.StdDev <= 0 {
		return agent.Alert{}, false
	}
	days := freeGB / baseline.StdDev

	switch {
	case days < 7:
		return a.Emit(agent.Alert{
			Type: "storage_predicted_full", Priority: agent.PriorityCritical,
			Message: fmt.Sprintf("volume %s may be full in ~%.0f days", volID, days),
		}), true
	case days < 30:
		return a.Emit(agent.Alert{
			Type: "storage_predicted_full", Priority: agent.PriorityHigh,
			Message: fmt.Sprintf("volume %s may be full in ~%.0f days", volID, days),
		}), true
	default:
		return agent.Alert{}, false
	}
}

// checkVolumeStatus reports a degraded or crashed volume as critical,
// independent of its capacity reading.
func checkVolumeStatus(v appliance.Volume) (agent.Alert, bool) {
	switch v.Status {
	case "crashed":
		return agent.Alert{
			Type: "volume_crashed", Priority: agent.PriorityCritical,
			Message: fmt.Sprintf("volume %s has crashed", v.ID),
		}, true
	case "degraded":
		return agent.Alert{
			Type: "volume_degraded", Priority: agent.PriorityCritical,
			Message: fmt.Sprintf("volume %s is degraded", v.ID),
		}, true
	default:
		return agent.Alert{}, false
	}
}
