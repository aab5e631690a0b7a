package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "taskdeck/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, source, action, job_id, cron, enabled, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.Source, e.Action, e.JobID, nullStr(e.Cron),
		e.Enabled, e.OK, nullStr(e.Error), e.TookMS,
	)
	return err
}

func (s *sqliteStore) ListAudit(ctx context.Context, jobID string, limit int) ([]AuditEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, source, action, job_id, COALESCE(cron, ''), enabled, ok, COALESCE(err, ''), took_ms
		 FROM audit WHERE (? = '' OR job_id = ?) ORDER BY id DESC LIMIT ?`,
		jobID, jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e  AuditEntry
			at string
		)
		if err := rows.Scan(&at, &e.Source, &e.Action, &e.JobID, &e.Cron, &e.Enabled, &e.OK, &e.Error, &e.TookMS); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutSchedule(ctx context.Context, r ScheduleRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	r.JobID = strings.TrimSpace(r.JobID)
	if r.JobID == "" {
		return errors.New("job id required")
	}
	if r.AppliedAt.IsZero() {
		r.AppliedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(job_id, cron, enabled, applied_at) VALUES(?,?,?,?)
		 ON CONFLICT(job_id) DO UPDATE SET cron=excluded.cron, enabled=excluded.enabled, applied_at=excluded.applied_at`,
		r.JobID, r.Cron, r.Enabled, r.AppliedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetSchedule(ctx context.Context, jobID string) (ScheduleRecord, bool, error) {
	if s == nil || s.db == nil {
		return ScheduleRecord{}, false, ErrDisabled
	}
	var (
		r  ScheduleRecord
		at string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, cron, enabled, applied_at FROM schedules WHERE job_id = ?`,
		strings.TrimSpace(jobID),
	).Scan(&r.JobID, &r.Cron, &r.Enabled, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduleRecord{}, false, nil
	}
	if err != nil {
		return ScheduleRecord{}, false, err
	}
	r.AppliedAt, _ = time.Parse(time.RFC3339Nano, at)
	return r, true, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
