package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Schedule is the persisted schedule of a job as the Jobs service reports it.
type Schedule struct {
	Cron      string     `json:"cron"`
	Enabled   bool       `json:"enabled"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
}

type Job struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	DefaultCron string    `json:"defaultScheduleCron,omitempty"`
	Schedule    *Schedule `json:"schedule,omitempty"`
	LastRun     *Run      `json:"lastRun,omitempty"`
}

type RunStatus string

const (
	RunPending RunStatus = "PENDING"
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// Terminal reports whether no further status change is expected.
func (s RunStatus) Terminal() bool { return s == RunSuccess || s == RunFailed }

type Run struct {
	ID           string         `json:"id"`
	JobID        string         `json:"jobId"`
	Trigger      string         `json:"trigger,omitempty"`
	DryRun       bool           `json:"dryRun"`
	Status       RunStatus      `json:"status"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   *time.Time     `json:"finishedAt,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Summary      map[string]any `json:"summary,omitempty"`
}

// Duration is the wall time of a finished run, or zero.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

type RunFilter struct {
	JobID string
	Take  int
	Skip  int
}

func jobPath(jobID string, rest ...string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", fmt.Errorf("job id required")
	}
	p := "/api/jobs/" + url.PathEscape(jobID)
	for _, r := range rest {
		p += "/" + r
	}
	return p, nil
}

func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

func (c *Client) RunJob(ctx context.Context, jobID string, dryRun bool) (Run, error) {
	p, err := jobPath(jobID, "run")
	if err != nil {
		return Run{}, err
	}
	var out struct {
		Run Run `json:"run"`
	}
	in := map[string]any{"dryRun": dryRun}
	if err := c.do(ctx, http.MethodPost, p, nil, in, &out); err != nil {
		return Run{}, err
	}
	return out.Run, nil
}

func (c *Client) UpdateJobSchedule(ctx context.Context, jobID, cron string, enabled bool) (Schedule, error) {
	p, err := jobPath(jobID, "schedule")
	if err != nil {
		return Schedule{}, err
	}
	var out struct {
		Schedule Schedule `json:"schedule"`
	}
	in := Schedule{Cron: strings.TrimSpace(cron), Enabled: enabled}
	if err := c.do(ctx, http.MethodPut, p, nil, in, &out); err != nil {
		return Schedule{}, err
	}
	return out.Schedule, nil
}

func (c *Client) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	q := url.Values{}
	if id := strings.TrimSpace(f.JobID); id != "" {
		q.Set("jobId", id)
	}
	if f.Take > 0 {
		q.Set("take", strconv.Itoa(f.Take))
	}
	if f.Skip > 0 {
		q.Set("skip", strconv.Itoa(f.Skip))
	}
	var out struct {
		Runs []Run `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs/runs", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Runs, nil
}

func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return Run{}, fmt.Errorf("run id required")
	}
	var out struct {
		Run Run `json:"run"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/jobs/runs/"+url.PathEscape(runID), nil, nil, &out); err != nil {
		return Run{}, err
	}
	return out.Run, nil
}

// WaitForRun polls a run until it reaches a terminal status or ctx ends.
func (c *Client) WaitForRun(ctx context.Context, runID string, every time.Duration) (Run, error) {
	if every <= 0 {
		every = 2 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return Run{}, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// FetchSchedule returns the persisted schedule of jobID. A job that exists but
// has never been scheduled reports its default cron, disabled.
func (c *Client) FetchSchedule(ctx context.Context, jobID string) (Schedule, error) {
	jobs, err := c.ListJobs(ctx)
	if err != nil {
		return Schedule{}, err
	}
	for _, j := range jobs {
		if j.ID != jobID {
			continue
		}
		if j.Schedule != nil {
			return *j.Schedule, nil
		}
		return Schedule{Cron: j.DefaultCron}, nil
	}
	return Schedule{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
}

// SaveSchedule persists (cron, enabled) for jobID.
func (c *Client) SaveSchedule(ctx context.Context, jobID, cron string, enabled bool) (Schedule, error) {
	return c.UpdateJobSchedule(ctx, jobID, cron, enabled)
}
