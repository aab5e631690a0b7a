package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "taskdeck/pkg/logx"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:       srv.URL + "/",
		APIToken:      "secret",
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
	}, logx.Nop(), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "ftp://example.com", "://nope"} {
		if _, err := New(Config{BaseURL: raw}, logx.Nop()); err == nil {
			t.Fatalf("expected error for base url %q", raw)
		}
	}
}

func TestListJobsAndFetchSchedule(t *testing.T) {
	t.Parallel()
	var sawAuth, sawReqID atomic.Bool
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/jobs" {
			http.NotFound(w, r)
			return
		}
		sawAuth.Store(r.Header.Get("Authorization") == "Bearer secret")
		sawReqID.Store(r.Header.Get("X-Request-ID") != "")
		writeJSON(w, http.StatusOK, map[string]any{"jobs": []any{
			map[string]any{"id": "monitorConfirm", "name": "Monitor confirm", "schedule": map[string]any{"cron": "0 9 * * 1", "enabled": true}},
			map[string]any{"id": "mediaAddedCleanup", "name": "Cleanup", "defaultScheduleCron": "30 3 * * *"},
		}})
	}))

	ctx := context.Background()
	jobs, err := c.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "monitorConfirm" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	if !sawAuth.Load() || !sawReqID.Load() {
		t.Fatal("expected bearer token and request id headers")
	}

	s, err := c.FetchSchedule(ctx, "monitorConfirm")
	if err != nil {
		t.Fatalf("FetchSchedule: %v", err)
	}
	if s.Cron != "0 9 * * 1" || !s.Enabled {
		t.Fatalf("unexpected schedule: %+v", s)
	}

	s, err = c.FetchSchedule(ctx, "mediaAddedCleanup")
	if err != nil {
		t.Fatalf("FetchSchedule default: %v", err)
	}
	if s.Cron != "30 3 * * *" || s.Enabled {
		t.Fatalf("unexpected default schedule: %+v", s)
	}

	if _, err := c.FetchSchedule(ctx, "missing"); !errors.Is(err, ErrJobNotFound) || !IsNotFound(err) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestSaveSchedule(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/jobs/monitorConfirm/schedule" {
			http.NotFound(w, r)
			return
		}
		var in Schedule
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"schedule": in})
	}))

	s, err := c.SaveSchedule(context.Background(), "monitorConfirm", " 5 14 1,15 * * ", true)
	if err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}
	if s.Cron != "5 14 1,15 * *" || !s.Enabled {
		t.Fatalf("unexpected schedule: %+v", s)
	}
	if _, err := c.SaveSchedule(context.Background(), " ", "0 0 * * *", true); err == nil {
		t.Fatal("expected error for empty job id")
	}
}

func TestRetryOnServerError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"message": "warming up"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"runs": []any{map[string]any{"id": "r1", "jobId": "j", "status": "SUCCESS"}}})
	}))

	runs, err := c.ListRuns(context.Background(), RunFilter{JobID: "j", Take: 5})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": []string{"cron must be valid"}})
	}))

	_, err := c.UpdateJobSchedule(context.Background(), "j", "bad", true)
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if he.Status != http.StatusBadRequest || he.Message != "cron must be valid" {
		t.Fatalf("unexpected error: %+v", he)
	}
	if IsRetryable(err) {
		t.Fatal("4xx must not be retryable")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestRetryGivesUp(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := c.ListJobs(context.Background())
	if StatusCode(err) != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 1 + 2 retries", got)
	}
}

func TestRunJobNotRetried(t *testing.T) {
	t.Parallel()
	var posts, status atomic.Int32
	status.Store(http.StatusBadGateway)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		w.WriteHeader(int(status.Load()))
	}))

	if _, err := c.RunJob(context.Background(), "j", false); StatusCode(err) != http.StatusBadGateway {
		t.Fatalf("expected 502, got %v", err)
	}
	if got := posts.Load(); got != 1 {
		t.Fatalf("posts = %d, a run must not be started twice", got)
	}

	// 429 means the request was refused, so repeating it is safe.
	posts.Store(0)
	status.Store(http.StatusTooManyRequests)
	if _, err := c.TestIntegration(context.Background(), "plex", nil); StatusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if got := posts.Load(); got != 3 {
		t.Fatalf("posts = %d, want 1 + 2 retries on 429", got)
	}
}

func TestRunJobAndWait(t *testing.T) {
	t.Parallel()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs/{id}/run", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			DryRun bool `json:"dryRun"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		writeJSON(w, http.StatusOK, map[string]any{"run": map[string]any{"id": "run-1", "jobId": r.PathValue("id"), "dryRun": in.DryRun, "status": "PENDING"}})
	})
	mux.HandleFunc("GET /api/jobs/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		status := "RUNNING"
		if polls.Add(1) >= 3 {
			status = "SUCCESS"
		}
		writeJSON(w, http.StatusOK, map[string]any{"run": map[string]any{"id": r.PathValue("id"), "jobId": "j", "status": status}})
	})
	c := newTestClient(t, mux)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run, err := c.RunJob(ctx, "j", true)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if run.ID != "run-1" || !run.DryRun || run.JobID != "j" {
		t.Fatalf("unexpected run: %+v", run)
	}

	done, err := c.WaitForRun(ctx, run.ID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForRun: %v", err)
	}
	if done.Status != RunSuccess {
		t.Fatalf("status = %s, want SUCCESS", done.Status)
	}
}

func TestContextCancelStopsRetries(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ListJobs(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffBounds(t *testing.T) {
	t.Parallel()
	c, err := New(Config{BaseURL: "http://example.invalid", RetryBase: 100 * time.Millisecond, RetryMaxDelay: 300 * time.Millisecond}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for attempt := 1; attempt <= 6; attempt++ {
		d := c.backoff(attempt)
		if d < 100*time.Millisecond || d > 450*time.Millisecond {
			t.Fatalf("backoff(%d) = %v out of bounds", attempt, d)
		}
	}
}
