package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "taskdeck/pkg/logx"
)

func openTestStore(t *testing.T, driver string) (Store, Config) {
	t.Helper()
	cfg := Config{Driver: driver, Path: filepath.Join(t.TempDir(), "state", "taskdeck.db"), BusyTimeout: time.Second}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s): %v", driver, err)
	}
	if st == nil {
		t.Fatalf("Open(%s) returned nil store", driver)
	}
	return st, cfg
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for file driver without path")
	}
}

func TestStoreDrivers(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			st, cfg := openTestStore(t, driver)

			now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
			entries := []AuditEntry{
				{At: now, Source: "cli", Action: ActionScheduleSave, JobID: "a", Cron: "0 9 * * *", Enabled: true, OK: true, TookMS: 12},
				{At: now.Add(time.Minute), Source: "sync", Action: ActionSyncApply, JobID: "b", Cron: "0 3 1 * *", OK: false, Error: "HTTP 500"},
				{At: now.Add(2 * time.Minute), Source: "cli", Action: ActionJobRun, JobID: "a", OK: true},
			}
			for _, e := range entries {
				if err := st.AppendAudit(ctx, e); err != nil {
					t.Fatalf("AppendAudit: %v", err)
				}
			}

			got, err := st.ListAudit(ctx, "a", 0)
			if err != nil {
				t.Fatalf("ListAudit: %v", err)
			}
			if len(got) != 2 || got[0].Action != ActionJobRun || got[1].Cron != "0 9 * * *" {
				t.Fatalf("unexpected audit for a: %+v", got)
			}
			all, err := st.ListAudit(ctx, "", 1)
			if err != nil {
				t.Fatalf("ListAudit all: %v", err)
			}
			if len(all) != 1 || all[0].JobID != "a" || !all[0].At.Equal(now.Add(2*time.Minute)) {
				t.Fatalf("unexpected newest entry: %+v", all)
			}

			rec := ScheduleRecord{JobID: "a", Cron: "0 9 * * 1", Enabled: true, AppliedAt: now}
			if err := st.PutSchedule(ctx, rec); err != nil {
				t.Fatalf("PutSchedule: %v", err)
			}
			rec.Cron = "0 10 * * 1"
			if err := st.PutSchedule(ctx, rec); err != nil {
				t.Fatalf("PutSchedule update: %v", err)
			}
			if err := st.PutSchedule(ctx, ScheduleRecord{}); err == nil {
				t.Fatal("expected error for empty job id")
			}

			if _, ok, err := st.GetSchedule(ctx, "missing"); ok || err != nil {
				t.Fatalf("GetSchedule(missing) = %v, %v", ok, err)
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			// Reopen: schedules survive restarts.
			st2, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer st2.Close()
			r, ok, err := st2.GetSchedule(ctx, "a")
			if err != nil || !ok {
				t.Fatalf("GetSchedule after reopen = %v, %v", ok, err)
			}
			if r.Cron != "0 10 * * 1" || !r.Enabled || !r.AppliedAt.Equal(now) {
				t.Fatalf("unexpected record: %+v", r)
			}
		})
	}
}
