package storage

import (
	"context"
	"errors"
	"strings"

	logx "taskdeck/pkg/logx"
)

// Store is the persistence API used by the CLI, editor and sync daemon.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	// ListAudit returns the newest entries first; jobID "" matches all jobs.
	ListAudit(ctx context.Context, jobID string, limit int) ([]AuditEntry, error)
	PutSchedule(ctx context.Context, r ScheduleRecord) error
	GetSchedule(ctx context.Context, jobID string) (r ScheduleRecord, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("component", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
