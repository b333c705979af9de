package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/nasguard/nasguard/internal/agent"
	"github.com/nasguard/nasguard/internal/appliance"
	"github.com/nasguard/nasguard/internal/store"
)

const (
	backupWarningDays  = 3
	backupCriticalDays = 7

	backupRunningSlowFactor = 1.5
	backupSizeHighFactor    = 2.0
	backupSizeLowFactor     = 0.5
)

// BackupAgent watches configured backup jobs for failures, staleness,
// abnormal sizes and abnormally long runs.
type BackupAgent struct {
	*agent.BaseAgent
	client appliance.Client
	now    func() time.Time
}

func NewBackupAgent(s *store.Store, client appliance.Client) *BackupAgent {
	return &BackupAgent{BaseAgent: agent.NewBaseAgent("backup", s), client: client, now: time.Now}
}

func (a *BackupAgent) Check(ctx context.Context) ([]agent.Alert, error) {
	tasks, err := a.client.BackupTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup: fetch tasks: %w", err)
	}

	var alerts []agent.Alert
	var successfulTasks int

	for _, task := range tasks {
		taskCtx, _ := store.NewContext(map[string]any{"task": task.Name, "status": task.Status})

		sizeMetric := "backup_size_" + task.Name
		durationMetric := "backup_duration_" + task.Name
		sizeGB := float64(task.TransferredBytes) / (1024 * 1024 * 1024)
		durationMinutes := float64(task.DurationSeconds) / 60

		if task.TransferredBytes > 0 {
			if err := a.Observe(sizeMetric, sizeGB, taskCtx); err != nil {
				return nil, fmt.Errorf("backup: observe size %s: %w", task.Name, err)
			}
		}
		if task.DurationSeconds > 0 {
			if err := a.Observe(durationMetric, durationMinutes, taskCtx); err != nil {
				return nil, fmt.Errorf("backup: observe duration %s: %w", task.Name, err)
			}
		}

		switch task.Status {
		case "error":
			alerts = append(alerts, a.Emit(agent.Alert{
				Type: "backup_error", Priority: agent.PriorityCritical,
				Message: fmt.Sprintf("backup task %q in error state", task.Name),
				Context: taskCtx,
			}))
			continue

		case "running":
			if alert, ok := a.checkRunningDuration(task.Name, durationMetric, durationMinutes); ok {
				alerts = append(alerts, alert)
			}
			alerts = append(alerts, agent.Alert{
				Type: "backup_running", Priority: agent.PriorityInfo,
				Message: fmt.Sprintf("backup task %q is currently running", task.Name), Context: taskCtx,
			})
			continue
		}

		if task.LastBackupTime == nil {
			alerts = append(alerts, a.Emit(agent.Alert{
				Type: "backup_never_run", Priority: agent.PriorityHigh,
				Message: fmt.Sprintf("backup task %q has never run", task.Name), Context: taskCtx,
			}))
			continue
		}

		alerts = append(alerts, a.checkBackupTiming(task.Name, *task.LastBackupTime)...)
		if task.TransferredBytes > 0 {
			if alert, ok := a.checkBackupSizeAnomaly(task.Name, sizeMetric, sizeGB); ok {
				alerts = append(alerts, alert)
			}
		}
		successfulTasks++
	}

	if total := len(tasks); total > 0 {
		successRate := float64(successfulTasks) / float64(total) * 100
		if err := a.Observe("backup_success_rate", successRate, nil); err != nil {
			return nil, fmt.Errorf("backup: observe success rate: %w", err)
		}
		if a.HasSufficientData("backup_success_rate") && a.Trend("backup_success_rate", 7) == store.TrendDecreasing {
			alerts = append(alerts, a.Emit(agent.Alert{
				Type: "backup_success_rate_declining", Priority: agent.PriorityHigh,
				Message: fmt.Sprintf("backup success rate is declining: currently %.0f%% of tasks successful", successRate),
			}))
		}
	}

	return alerts, nil
}

// checkRunningDuration flags a still-running task that has already
// taken well beyond its learned normal duration.
func (a *BackupAgent) checkRunningDuration(taskName, durationMetric string, currentMinutes float64) (agent.Alert, bool) {
	if !a.HasSufficientData(durationMetric) || !a.IsAnomaly(durationMetric, "backup_slow", currentMinutes) {
		return agent.Alert{}, false
	}
	baseline, ok := a.Baseline(durationMetric)
	if !ok || currentMinutes <= baseline.Mean*backupRunningSlowFactor {
		return agent.Alert{}, false
	}
	ctx, _ := store.NewContext(map[string]any{"task": taskName, "duration_minutes": currentMinutes})
	return a.Emit(agent.Alert{
		Type: "backup_slow", Priority: agent.PriorityMedium,
		Message: fmt.Sprintf("backup task %q running longer than usual (%.0fmin, normal ~%.0fmin)", taskName, currentMinutes, baseline.Mean),
		Context: ctx,
	}), true
}

// checkBackupTiming bands days-since-last-backup against thresholds
// that default to warning=3/critical=7 and are replaced by bands
// derived from the task's typical interval once one has been learned.
func (a *BackupAgent) checkBackupTiming(taskName string, lastBackup time.Time) []agent.Alert {
	elapsed := a.now().Sub(lastBackup)
	daysSince := int(elapsed.Hours() / 24)
	hoursSince := elapsed.Hours()

	hoursMetric := "hours_since_backup_" + taskName
	if err := a.Observe(hoursMetric, hoursSince, nil); err != nil {
		return nil
	}

	warningDays, criticalDays := a.adjustedBackupThresholds(hoursMetric)
	ctx, _ := store.NewContext(map[string]any{"task": taskName, "days_since": int64(daysSince)})

	switch {
	case daysSince >= criticalDays:
		return []agent.Alert{a.Emit(agent.Alert{
			Type: "backup_overdue_critical", Priority: agent.PriorityCritical,
			Message: fmt.Sprintf("backup %q not run for %d days", taskName, daysSince),
			Context: ctx,
		})}
	case daysSince >= warningDays:
		return []agent.Alert{a.Emit(agent.Alert{
			Type: "backup_overdue_warning", Priority: agent.PriorityHigh,
			Message: fmt.Sprintf("backup %q not run for %d days", taskName, daysSince),
			Context: ctx,
		})}
	default:
		return []agent.Alert{{
			Type: "backup_ok", Priority: agent.PriorityLow,
			Message: fmt.Sprintf("backup %q completed successfully", taskName),
			Context: ctx,
		}}
	}
}

// adjustedBackupThresholds replaces the default warning/critical day
// bands with 1.5x and 3x the learned typical backup interval (clamped
// to 1-14 and 2-30 days) once at least 5 samples exist, so a task that
// only ever backs up weekly isn't flagged every Monday.
func (a *BackupAgent) adjustedBackupThresholds(hoursMetric string) (warningDays, criticalDays int) {
	warningDays, criticalDays = backupWarningDays, backupCriticalDays

	baseline, ok := a.Baseline(hoursMetric)
	if !ok || baseline.SampleCount < 5 {
		return warningDays, criticalDays
	}

	typicalIntervalDays := baseline.Mean / 24
	if typicalIntervalDays <= 0 {
		return warningDays, criticalDays
	}

	warningDays = min(max(int(typicalIntervalDays*1.5), 1), 14)
	criticalDays = min(max(int(typicalIntervalDays*3), 2), 30)
	return warningDays, criticalDays
}

// checkBackupSizeAnomaly flags a completed backup whose transferred
// size is both anomalous and far enough from baseline to suggest a
// real problem (a partial backup, or unexpected data growth).
func (a *BackupAgent) checkBackupSizeAnomaly(taskName, sizeMetric string, sizeGB float64) (agent.Alert, bool) {
	if !a.HasSufficientData(sizeMetric) || !a.IsAnomaly(sizeMetric, "backup_size", sizeGB) {
		return agent.Alert{}, false
	}
	baseline, ok := a.Baseline(sizeMetric)
	if !ok || baseline.Mean <= 0 {
		return agent.Alert{}, false
	}

	ctx, _ := store.NewContext(map[string]any{"task": taskName, "size_gb": sizeGB})
	switch {
	case sizeGB > baseline.Mean*backupSizeHighFactor:
		return a.Emit(agent.Alert{
			Type: "backup_size_high", Priority: agent.PriorityMedium,
			Message: fmt.Sprintf("backup %q unusually large: %.1fGB (normal ~%.1fGB)", taskName, sizeGB, baseline.Mean),
			Context: ctx,
		}), true
	case sizeGB < baseline.Mean*backupSizeLowFactor:
		return a.Emit(agent.Alert{
			Type: "backup_size_low", Priority: agent.PriorityMedium,
			Message: fmt.Sprintf("backup %q unusually small: %.1fGB (normal ~%.1fGB), verify integrity", taskName, sizeGB, baseline.Mean),
			Context: ctx,
		}), true
	default:
		return agent.Alert{}, false
	}
}
