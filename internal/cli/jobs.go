package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskdeck/internal/backend"
	"taskdeck/internal/schedule"
	"taskdeck/internal/storage"
)

func newJobsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs with their schedule and last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := e.client()
			if err != nil {
				return err
			}
			jobs, err := api.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			codec := e.cfg.Codec()
			return e.render(map[string]any{"jobs": jobs}, func(t *table) {
				t.header("ID", "NAME", "SCHEDULE", "ENABLED", "NEXT RUN", "LAST RUN")
				for _, j := range jobs {
					sched, enabled, next := "default: "+orDash(j.DefaultCron), false, (*time.Time)(nil)
					if j.Schedule != nil {
						sched = schedule.Describe(codec.Decode(j.Schedule.Cron, j.Schedule.Enabled))
						enabled, next = j.Schedule.Enabled, j.Schedule.NextRunAt
					}
					last := "-"
					if j.LastRun != nil {
						last = fmt.Sprintf("%s %s", j.LastRun.Status, ago(&j.LastRun.StartedAt))
					}
					t.row(j.ID, orDash(j.Name), sched, enabled, ago(next), last)
				}
			})
		},
	}
}

func newRunCommand(e *env) *cobra.Command {
	var (
		dryRun bool
		wait   bool
		poll   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Trigger a job run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := e.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			started := time.Now()
			run, err := api.RunJob(ctx, args[0], dryRun)
			entry := storage.AuditEntry{Action: storage.ActionJobRun, JobID: args[0], OK: err == nil, TookMS: time.Since(started).Milliseconds()}
			if err != nil {
				entry.Error = err.Error()
			}
			e.audit(ctx, entry)
			if err != nil {
				return err
			}
			if wait {
				if run, err = api.WaitForRun(ctx, run.ID, poll); err != nil {
					return err
				}
			}
			if err := e.render(map[string]any{"run": run}, func(t *table) { runTable(t, []backend.Run{run}) }); err != nil {
				return err
			}
			if wait && run.Status == backend.RunFailed {
				return errors.New("run failed: " + orDash(run.ErrorMessage))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "ask the job to report what it would do without changing anything")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the run finishes")
	cmd.Flags().DurationVar(&poll, "poll", 2*time.Second, "poll interval with --wait")
	return cmd
}

func newRunsCommand(e *env) *cobra.Command {
	var f backend.RunFilter
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := e.client()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				run, err := api.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return e.render(map[string]any{"run": run}, func(t *table) { runTable(t, []backend.Run{run}) })
			}
			runs, err := api.ListRuns(cmd.Context(), f)
			if err != nil {
				return err
			}
			return e.render(map[string]any{"runs": runs}, func(t *table) { runTable(t, runs) })
		},
	}
	cmd.Flags().StringVar(&f.JobID, "job", "", "only runs of this job")
	cmd.Flags().IntVar(&f.Take, "take", 20, "max runs to list")
	cmd.Flags().IntVar(&f.Skip, "skip", 0, "runs to skip (paging)")
	return cmd
}

func runTable(t *table, runs []backend.Run) {
	t.header("ID", "JOB", "STATUS", "TRIGGER", "DRY RUN", "STARTED", "DURATION", "ERROR")
	for _, r := range runs {
		took := "-"
		if d := r.Duration(); d > 0 {
			took = d.Round(time.Millisecond).String()
		}
		t.row(r.ID, r.JobID, r.Status, orDash(r.Trigger), r.DryRun, ago(&r.StartedAt), took, orDash(truncate(r.ErrorMessage, 60)))
	}
}
