package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskdeck/internal/editor"
	"taskdeck/internal/schedule"
	"taskdeck/internal/storage"
)

type scheduleView struct {
	JobID       string         `json:"jobId"`
	Cron        string         `json:"cron"`
	Enabled     bool           `json:"enabled"`
	Description string         `json:"description"`
	Draft       schedule.Draft `json:"draft"`
	NextRuns    []time.Time    `json:"nextRuns"`
}

func (e *env) viewOf(jobID, cron string, d schedule.Draft) (scheduleView, error) {
	loc, err := e.cfg.Location()
	if err != nil {
		return scheduleView{}, err
	}
	return scheduleView{
		JobID:       jobID,
		Cron:        cron,
		Enabled:     d.Enabled,
		Description: schedule.Describe(d),
		Draft:       d,
		NextRuns:    schedule.Preview(d, e.cfg.PreviewCount(), time.Now().In(loc)),
	}, nil
}

func (e *env) renderSchedule(v scheduleView) error {
	return e.render(v, func(t *table) {
		t.row("JOB", v.JobID)
		t.row("CRON", orDash(v.Cron))
		t.row("ENABLED", v.Enabled)
		t.row("SCHEDULE", v.Description)
		for i, at := range v.NextRuns {
			label := ""
			if i == 0 {
				label = "NEXT RUNS"
			}
			t.row(label, at.Format("Mon 2006-01-02 15:04 MST")+"  ("+ago(&at)+")")
		}
	})
}

func newScheduleCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show, change and preview job schedules",
	}
	cmd.AddCommand(
		newScheduleShowCommand(e),
		newScheduleSetCommand(e),
		newSchedulePreviewCommand(e),
		newScheduleEditCommand(e),
	)
	return cmd
}

func newScheduleShowCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job>",
		Short: "Show the persisted schedule of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := e.client()
			if err != nil {
				return err
			}
			s, err := api.FetchSchedule(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			v, err := e.viewOf(args[0], s.Cron, e.cfg.Codec().Decode(s.Cron, s.Enabled))
			if err != nil {
				return err
			}
			return e.renderSchedule(v)
		},
	}
}

func newSchedulePreviewCommand(e *env) *cobra.Command {
	var cron string
	cmd := &cobra.Command{
		Use:   "preview [job]",
		Short: "Preview upcoming runs of a job, or of --cron without contacting the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = args[0]
			}
			switch {
			case cron != "":
				if err := schedule.ValidateCron(cron); err != nil {
					return err
				}
				cron = strings.Join(strings.Fields(cron), " ")
			case jobID != "":
				api, err := e.client()
				if err != nil {
					return err
				}
				s, err := api.FetchSchedule(cmd.Context(), jobID)
				if err != nil {
					return err
				}
				cron = s.Cron
			default:
				return errors.New("a job id or --cron is required")
			}
			v, err := e.viewOf(jobID, cron, e.cfg.Codec().Decode(cron, true))
			if err != nil {
				return err
			}
			return e.renderSchedule(v)
		},
	}
	cmd.Flags().StringVar(&cron, "cron", "", "cron expression to preview")
	return cmd
}

// newEditor opens an editor for jobID, auditing every save.
func (e *env) newEditor(ctx context.Context, jobID string, debounce time.Duration) (*editor.Editor, error) {
	api, err := e.client()
	if err != nil {
		return nil, err
	}
	ed := editor.New(jobID, api, editor.Options{
		Debounce: debounce,
		Codec:    e.cfg.Codec(),
		Log:      e.log,
		OnSave: func(in editor.Intent, took time.Duration, err error) {
			entry := storage.AuditEntry{
				Action:  storage.ActionScheduleSave,
				JobID:   in.JobID,
				Cron:    in.Cron,
				Enabled: in.Enabled,
				OK:      err == nil,
				TookMS:  took.Milliseconds(),
			}
			if err != nil {
				entry.Error = err.Error()
			}
			e.audit(context.WithoutCancel(ctx), entry)
		},
	})
	if _, err := ed.Load(ctx); err != nil {
		ed.Close()
		return nil, err
	}
	return ed, nil
}

func newScheduleSetCommand(e *env) *cobra.Command {
	var (
		freq    string
		at      string
		days    []int
		cron    string
		enable  bool
		disable bool
	)
	cmd := &cobra.Command{
		Use:   "set <job>",
		Short: "Change a job's schedule",
		Example: `  taskdeck schedule set monitorConfirm --frequency weekly --time 09:00 --days 1,3
  taskdeck schedule set mediaAddedCleanup --cron "*/30 * * * *" --enable`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return errors.New("--enable and --disable are mutually exclusive")
			}
			if cron != "" && (freq != "" || at != "" || len(days) > 0) {
				return errors.New("--cron can't be combined with --frequency, --time or --days")
			}
			ctx := cmd.Context()
			ed, err := e.newEditor(ctx, args[0], time.Hour)
			if err != nil {
				return err
			}
			defer ed.Close()

			if err := applyScheduleFlags(ed, freq, at, days, cron, enable, disable); err != nil {
				return err
			}
			st := ed.Snapshot()
			if !st.Valid {
				return fmt.Errorf("schedule %q cannot be saved: check the time and selected days", schedule.Describe(st.Draft))
			}
			if err := ed.Flush(ctx); err != nil {
				return err
			}
			st = ed.Snapshot()
			v, err := e.viewOf(args[0], st.Persisted.Cron, st.Draft)
			if err != nil {
				return err
			}
			return e.renderSchedule(v)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&freq, "frequency", "", "daily, weekly or monthly")
	fl.StringVar(&at, "time", "", "time of day, HH:MM")
	fl.IntSliceVar(&days, "days", nil, "weekdays (0=Sun..6) for weekly, days 1..28 for monthly")
	fl.StringVar(&cron, "cron", "", "raw cron expression")
	fl.BoolVar(&enable, "enable", false, "enable the schedule")
	fl.BoolVar(&disable, "disable", false, "disable the schedule")
	return cmd
}

func applyScheduleFlags(ed *editor.Editor, freq, at string, days []int, cron string, enable, disable bool) error {
	if cron != "" {
		if err := ed.UseAdvancedCron(cron); err != nil {
			return err
		}
	}
	if freq != "" {
		f, err := schedule.ParseFrequency(freq)
		if err != nil {
			return err
		}
		if err := ed.SetFrequency(f); err != nil {
			return err
		}
	}
	if at != "" {
		if _, _, err := schedule.ParseTime(at); err != nil {
			return err
		}
		if err := ed.SetTime(at); err != nil {
			return err
		}
	}
	if len(days) > 0 {
		if err := ed.SetDays(days); err != nil {
			return err
		}
	}
	switch {
	case enable:
		return ed.SetEnabled(true)
	case disable:
		return ed.SetEnabled(false)
	}
	return nil
}
