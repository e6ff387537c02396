package core

import (
	"time"
)

// HealthStatus is the system health report.
type HealthStatus struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	AuditDevices  []string `json:"audit_devices"`
}

// Health reports liveness and basic runtime facts.
func (c *Core) Health() *HealthStatus {
	return &HealthStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(c.startedAt).Seconds()),
		AuditDevices:  c.auditMgr.ListDevices(),
	}
}

// MetricsSnapshot merges token and classifier counters into one map.
// Classifier counters carry a "classifier_" prefix.
func (c *Core) MetricsSnapshot() map[string]int64 {
	snapshot := c.tokenMetrics.GetSnapshot()
	for k, v := range c.classifierMetrics.GetSnapshot() {
		snapshot["classifier_"+k] = v
	}
	return snapshot
}
