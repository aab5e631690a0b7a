package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskdeck/internal/backend"
	"taskdeck/internal/notify"
)

func newHealthCommand(e *env) *cobra.Command {
	var (
		since  string
		send   bool
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Summarize recent run results per job",
		Long: `health folds the run history of the window into one line per job:
failing (last finished run failed), degraded (failed at least once),
no_runs, or ok. --notify also sends the summary to notify.telegram.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			window, err := parseWindow(since)
			if err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			var tg *notify.Telegram
			if send {
				if tg, err = e.telegram(); err != nil {
					return err
				}
				if tg == nil {
					return errors.New("--notify needs notify.telegram in the config")
				}
			}
			api, err := e.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			rep, err := api.Health(ctx, time.Now().Add(-window))
			if err != nil {
				return err
			}
			if err := e.render(rep, func(t *table) {
				t.header("JOB", "STATE", "RUNS", "OK", "FAILED", "ACTIVE", "LAST RUN", "LAST ERROR")
				for _, h := range rep.Jobs {
					last := "-"
					if h.LastRun != nil {
						last = fmt.Sprintf("%s %s", h.LastRun.Status, ago(&h.LastRun.StartedAt))
					}
					t.row(h.JobID, h.State, h.Runs, h.Succeeded, h.Failed, h.Active, last, orDash(truncate(h.LastError, 50)))
				}
			}); err != nil {
				return err
			}
			if tg != nil {
				if err := tg.Alert(ctx, healthText(rep, since)); err != nil {
					return fmt.Errorf("send report: %w", err)
				}
			}
			if strict && rep.Unhealthy() {
				return errors.New("some jobs are failing")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&since, "since", "7d", "window to report on (e.g. 7d, 36h)")
	cmd.Flags().BoolVar(&send, "notify", false, "also send the summary to notify.telegram")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when a job is failing")
	return cmd
}

// parseWindow accepts Go durations plus a whole-day suffix ("7d").
func parseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var (
		d   time.Duration
		err error
	)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		var n int
		n, err = strconv.Atoi(days)
		d = time.Duration(n) * 24 * time.Hour
	} else {
		d, err = time.ParseDuration(s)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	if d <= 0 {
		return 0, fmt.Errorf("window must be > 0, got %q", s)
	}
	return d, nil
}

// healthText is the plain-text report sent to chat.
func healthText(rep backend.HealthReport, window string) string {
	c := rep.Counts()
	var b strings.Builder
	fmt.Fprintf(&b, "taskdeck health, last %s: %d failing, %d degraded, %d without runs, %d ok\n",
		window, c[backend.HealthFailing], c[backend.HealthDegraded], c[backend.HealthNoRuns], c[backend.HealthOK])
	for _, h := range rep.Jobs {
		switch h.State {
		case backend.HealthFailing:
			fmt.Fprintf(&b, "FAILING %s: %d/%d runs failed, last error: %s\n", h.JobID, h.Failed, h.Runs, orDash(truncate(h.LastError, 200)))
		case backend.HealthDegraded:
			fmt.Fprintf(&b, "DEGRADED %s: %d/%d runs failed\n", h.JobID, h.Failed, h.Runs)
		case backend.HealthNoRuns:
			fmt.Fprintf(&b, "NO RUNS %s\n", h.JobID)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// telegram builds the configured notifier, or nil when notify.telegram is unset.
func (e *env) telegram() (*notify.Telegram, error) {
	opts, ok := e.cfg.TelegramOptions()
	if !ok {
		return nil, nil
	}
	return notify.NewTelegram(opts, e.log)
}
