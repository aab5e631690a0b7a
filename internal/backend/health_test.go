package backend

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func testRun(id, job string, status RunStatus, started time.Time, msg string) Run {
	return Run{ID: id, JobID: job, Status: status, StartedAt: started, ErrorMessage: msg}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 6, 8, 12, 0, 0, 0, time.UTC)
	since := now.Add(-7 * 24 * time.Hour)
	jobs := []Job{
		{ID: "monitorConfirm", Name: "Monitor confirm"},
		{ID: "watchlistSync"},
		{ID: "mediaAddedCleanup"},
		{ID: "idle"},
	}
	runs := []Run{
		testRun("r1", "monitorConfirm", RunSuccess, now.Add(-time.Hour), ""),
		testRun("r2", "monitorConfirm", RunFailed, now.Add(-2*time.Hour), "boom"),
		testRun("r3", "watchlistSync", RunFailed, now.Add(-3*time.Hour), "timeout"),
		testRun("r4", "watchlistSync", RunRunning, now.Add(-time.Minute), ""),
		testRun("r5", "mediaAddedCleanup", RunSuccess, now.Add(-time.Hour), ""),
		testRun("r6", "mediaAddedCleanup", RunFailed, since.Add(-time.Hour), "too old"),
		testRun("r7", "removedJob", RunSuccess, now.Add(-time.Hour), ""),
	}

	rep := Summarize(jobs, runs, since, now)
	want := []struct {
		id    string
		state HealthState
		runs  int
	}{
		{"watchlistSync", HealthFailing, 2},
		{"monitorConfirm", HealthDegraded, 2},
		{"idle", HealthNoRuns, 0},
		{"mediaAddedCleanup", HealthOK, 1},
		{"removedJob", HealthOK, 1},
	}
	if len(rep.Jobs) != len(want) {
		t.Fatalf("jobs=%d want %d: %+v", len(rep.Jobs), len(want), rep.Jobs)
	}
	for i, w := range want {
		got := rep.Jobs[i]
		if got.JobID != w.id || got.State != w.state || got.Runs != w.runs {
			t.Fatalf("jobs[%d]=%s/%s/%d want %s/%s/%d", i, got.JobID, got.State, got.Runs, w.id, w.state, w.runs)
		}
	}
	ws := rep.Jobs[0]
	if ws.LastError != "timeout" || ws.Active != 1 || ws.LastRun == nil || ws.LastRun.ID != "r4" {
		t.Fatalf("watchlistSync: %+v", ws)
	}
	if rep.Jobs[1].Name != "Monitor confirm" || rep.Jobs[1].LastError != "" {
		t.Fatalf("monitorConfirm: %+v", rep.Jobs[1])
	}
	if !rep.Unhealthy() || rep.Counts()[HealthNoRuns] != 1 {
		t.Fatalf("counts: %v", rep.Counts())
	}
}

func TestHealthPagesUntilWindowStart(t *testing.T) {
	t.Parallel()
	now := time.Now()
	var pages atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/jobs":
			writeJSON(w, http.StatusOK, map[string]any{"jobs": []any{map[string]any{"id": "monitorConfirm"}}})
		case "/api/jobs/runs":
			pages.Add(1)
			skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
			if r.URL.Query().Get("take") != strconv.Itoa(healthPage) {
				http.Error(w, "bad take", http.StatusBadRequest)
				return
			}
			// One run per hour, newest first.
			runs := make([]Run, 0, healthPage)
			for i := 0; i < healthPage; i++ {
				n := skip + i
				runs = append(runs, testRun(fmt.Sprint("r", n), "monitorConfirm", RunSuccess, now.Add(-time.Duration(n)*time.Hour), ""))
			}
			writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
		default:
			http.NotFound(w, r)
		}
	}))

	rep, err := c.Health(context.Background(), now.Add(-149*time.Hour-30*time.Minute))
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if got := pages.Load(); got != 2 {
		t.Fatalf("pages=%d want 2", got)
	}
	if len(rep.Jobs) != 1 || rep.Jobs[0].Runs != 150 || rep.Jobs[0].State != HealthOK {
		t.Fatalf("report: %+v", rep.Jobs)
	}
}
