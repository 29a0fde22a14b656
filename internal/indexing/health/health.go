// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// SyncHealth describes the running or last sync pass of a platform.
type SyncHealth struct {
	Platform       string       `json:"platform"`
	Status         SystemStatus `json:"status"`
	Running        bool         `json:"running"`
	PassID         string       `json:"pass_id,omitempty"`
	Current        string       `json:"current,omitempty"`
	Processed      int          `json:"processed"`
	Pending        int          `json:"pending"`
	Failed         int          `json:"failed"`
	LastCheckpoint time.Time    `json:"last_checkpoint,omitempty"`
}

// ComponentHealth is the result of probing a dependency.
type ComponentHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Sync         map[string]SyncHealth      `json:"sync"`
	Components   map[string]ComponentHealth `json:"components"`
}
