// Package appliance defines the shapes the domain agents read from the
// monitored NAS appliance, and a minimal HTTP client capable of
// fetching them. The appliance's own authentication/session protocol
// is out of scope; Client is deliberately thin so a real
// implementation can be swapped in without touching the agents.
package appliance

import "time"

// SystemInfo is the appliance's top-level identity and health summary.
type SystemInfo struct {
	Hostname      string `json:"hostname"`
	Model         string `json:"model"`
	DSMVersion    string `json:"dsm_version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Volume is a shared-folder-backing logical volume.
type Volume struct {
	ID   string `json:"id"`
	Size struct {
		Total int64 `json:"total"`
		Used  int64 `json:"used"`
	} `json:"size"`
	Status string `json:"status"`
}

// PercentUsed returns the fraction of Size.Total currently used, or 0
// if the volume reports no capacity.
func (v Volume) PercentUsed() float64 {
	if v.Size.Total == 0 {
		return 0
	}
	return float64(v.Size.Used) / float64(v.Size.Total) * 100
}

// StoragePool is a RAID/pool grouping disks into a volume's backing
// redundancy.
type StoragePool struct {
	ID        string `json:"id"`
	RaidType  string `json:"raid_type"`
	Status    string `json:"status"`
	DiskIDs   []string `json:"disk_ids"`
	Degraded  bool     `json:"degraded"`
}

// Disk is a single physical drive and its SMART health.
type Disk struct {
	ID             string  `json:"id"`
	Model          string  `json:"model"`
	Status         string  `json:"status"` // "normal", "warning", "failed", "crashed"
	SmartStatus    string  `json:"smart_status"`
	TempCelsius    float64 `json:"temp"`
	BadSectorCount int64   `json:"bad_sector_count"`
	PowerOnHours   int64   `json:"power_on_hours"`
}

// BackupTask is one configured backup job and its most recent run.
type BackupTask struct {
	Name             string     `json:"name"`
	Status           string     `json:"status"` // "success", "error", "running", "never_run"
	LastBackupTime   *time.Time `json:"last_backup_time"`
	TransferredBytes int64      `json:"transferred_bytes"`
	DurationSeconds  int64      `json:"duration_seconds"`
	ErrorMessage     string     `json:"error_message"`
}

// SecurityScanItem is one finding from the appliance's security advisor.
type SecurityScanItem struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // "pass", "warn", "fail"
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// LogEntry is one system or connection log line.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	SourceIP  string    `json:"source_ip"`
	Username  string    `json:"username"`
}

// UpdateCheck reports whether a DSM update is available.
type UpdateCheck struct {
	Available      bool   `json:"available"`
	CurrentVersion string `json:"current_version"`
	LatestVersion  string `json:"latest_version"`
}
