package backend

import (
	"context"
	"sort"
	"time"
)

// HealthState classifies a job over a reporting window.
type HealthState string

const (
	HealthOK       HealthState = "ok"
	HealthDegraded HealthState = "degraded" // failed at least once, last run succeeded
	HealthFailing  HealthState = "failing"  // last finished run failed
	HealthNoRuns   HealthState = "no_runs"
)

// JobHealth summarizes the runs of one job inside the window.
type JobHealth struct {
	JobID     string      `json:"jobId"`
	Name      string      `json:"name,omitempty"`
	State     HealthState `json:"state"`
	Runs      int         `json:"runs"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Active    int         `json:"active"`
	DryRuns   int         `json:"dryRuns"`
	LastRun   *Run        `json:"lastRun,omitempty"`
	LastError string      `json:"lastError,omitempty"`
}

// HealthReport is the run health of every known job since a point in time.
type HealthReport struct {
	Since time.Time   `json:"since"`
	Until time.Time   `json:"until"`
	Jobs  []JobHealth `json:"jobs"`
}

// Counts returns how many jobs are in each state.
func (r HealthReport) Counts() map[HealthState]int {
	m := map[HealthState]int{}
	for _, j := range r.Jobs {
		m[j.State]++
	}
	return m
}

// Unhealthy reports whether any job is failing.
func (r HealthReport) Unhealthy() bool { return r.Counts()[HealthFailing] > 0 }

const healthPage = 100

// Health pages through the run history back to since and folds it per job.
// Every job the service lists appears, even without runs in the window.
func (c *Client) Health(ctx context.Context, since time.Time) (HealthReport, error) {
	jobs, err := c.ListJobs(ctx)
	if err != nil {
		return HealthReport{}, err
	}
	var runs []Run
	for skip := 0; ; skip += healthPage {
		page, err := c.ListRuns(ctx, RunFilter{Take: healthPage, Skip: skip})
		if err != nil {
			return HealthReport{}, err
		}
		runs = append(runs, page...)
		// Runs come newest first; stop once a page reaches past the window.
		if len(page) < healthPage || page[len(page)-1].StartedAt.Before(since) {
			break
		}
	}
	return Summarize(jobs, runs, since, time.Now()), nil
}

// Summarize folds runs started in [since, until] into one JobHealth per job.
// Runs of jobs missing from jobs are still reported. Failing jobs sort first,
// then degraded, then by id.
func Summarize(jobs []Job, runs []Run, since, until time.Time) HealthReport {
	byID := make(map[string]*JobHealth, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = &JobHealth{JobID: j.ID, Name: j.Name}
	}
	for i := range runs {
		r := runs[i]
		if r.StartedAt.Before(since) || r.StartedAt.After(until) {
			continue
		}
		h, ok := byID[r.JobID]
		if !ok {
			h = &JobHealth{JobID: r.JobID}
			byID[r.JobID] = h
		}
		h.Runs++
		if r.DryRun {
			h.DryRuns++
		}
		switch r.Status {
		case RunSuccess:
			h.Succeeded++
		case RunFailed:
			h.Failed++
		default:
			h.Active++
		}
		if h.LastRun == nil || r.StartedAt.After(h.LastRun.StartedAt) {
			h.LastRun = &r
		}
	}

	out := HealthReport{Since: since, Until: until, Jobs: make([]JobHealth, 0, len(byID))}
	for _, h := range byID {
		h.State = classify(h, runs, since, until)
		out.Jobs = append(out.Jobs, *h)
	}
	sort.Slice(out.Jobs, func(i, k int) bool {
		a, b := out.Jobs[i], out.Jobs[k]
		if rank(a.State) != rank(b.State) {
			return rank(a.State) < rank(b.State)
		}
		return a.JobID < b.JobID
	})
	return out
}

// classify looks at the newest finished run: an active run doesn't clear a failure.
func classify(h *JobHealth, runs []Run, since, until time.Time) HealthState {
	if h.Runs == 0 {
		return HealthNoRuns
	}
	var last *Run
	for i := range runs {
		r := &runs[i]
		if r.JobID != h.JobID || !r.Status.Terminal() || r.StartedAt.Before(since) || r.StartedAt.After(until) {
			continue
		}
		if last == nil || r.StartedAt.After(last.StartedAt) {
			last = r
		}
	}
	switch {
	case last != nil && last.Status == RunFailed:
		h.LastError = last.ErrorMessage
		return HealthFailing
	case h.Failed > 0:
		return HealthDegraded
	default:
		return HealthOK
	}
}

func rank(s HealthState) int {
	switch s {
	case HealthFailing:
		return 0
	case HealthDegraded:
		return 1
	case HealthNoRuns:
		return 2
	default:
		return 3
	}
}
