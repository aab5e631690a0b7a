package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines audit log + schedule journal/snapshot
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Audit actions.
const (
	ActionScheduleSave = "schedule.save"
	ActionJobRun       = "job.run"
	ActionSyncApply    = "sync.apply"
	ActionSyncSkip     = "sync.skip"
)

// AuditEntry records one change pushed to the Jobs service.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Source  string    `json:"source"` // "cli" | "editor" | "sync"
	Action  string    `json:"action"`
	JobID   string    `json:"job_id"`
	Cron    string    `json:"cron,omitempty"`
	Enabled bool      `json:"enabled"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}

// ScheduleRecord is the last schedule taskdeck applied to a job.
type ScheduleRecord struct {
	JobID     string    `json:"job_id"`
	Cron      string    `json:"cron"`
	Enabled   bool      `json:"enabled"`
	AppliedAt time.Time `json:"applied_at"`
}
