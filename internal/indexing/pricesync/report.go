package pricesync

import (
	"time"

	"github.com/vietddude/pricewatch/internal/core/domain"
)

// Report counts what happened to the addresses of one pass.
type Report struct {
	PassID           string        `json:"pass_id"`
	Total            int           `json:"total"`   // catalog size
	Pending          int           `json:"pending"` // addresses this pass had to fetch
	Skipped          int           `json:"skipped"` // negatively cached, not retried yet
	Fetched          int           `json:"fetched"`
	Empty            int           `json:"empty"`
	Permanent        int           `json:"permanent"`
	Failed           int           `json:"failed"`
	Attempts         int           `json:"attempts"`
	Checkpoints      int           `json:"checkpoints"`
	CheckpointErrors int           `json:"checkpoint_errors"`
	ReferenceSeeded  bool          `json:"reference_seeded"`
	Cancelled        bool          `json:"cancelled"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
}

// Processed is the number of pending addresses that reached a terminal outcome.
func (r Report) Processed() int {
	return r.Fetched + r.Empty + r.Permanent + r.Failed
}

// Result is the outcome of Sync.
type Result struct {
	Snapshot *domain.Snapshot
	Report   Report
}

// Status is a point-in-time view of the running or last pass.
type Status struct {
	Platform       string    `json:"platform"`
	Running        bool      `json:"running"`
	Current        string    `json:"current,omitempty"`
	LastCheckpoint time.Time `json:"last_checkpoint,omitempty"`
	Report         Report    `json:"report"`
}
