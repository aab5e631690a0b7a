package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taskdeck/internal/observability"
	"taskdeck/internal/storage"
	"taskdeck/internal/syncer"
	logx "taskdeck/pkg/logx"
)

func newSyncCommand(e *env) *cobra.Command {
	var (
		once   bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Keep the schedules declared under sync.jobs applied",
		Long: `sync reconciles sync.jobs from the config with the Jobs service.

Without --once it runs as a daemon: it reconciles at start, whenever the config
file changes and every sync.interval, and reports readiness to systemd.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun && !once {
				return errors.New("--dry-run needs --once; set sync.dry_run in the config for the daemon")
			}
			api, err := e.client()
			if err != nil {
				return err
			}
			store, err := e.openStore()
			if err != nil {
				return err
			}
			svc := syncer.New(api, e.cfgm, store, e.log)
			// notify.telegram is read once, like sync.status.
			if e.cfg.AlertOnFailure() {
				tg, err := e.telegram()
				if err != nil {
					return err
				}
				svc.SetAlerter(tg)
			}
			ctx := cmd.Context()

			if once {
				cfg := *e.cfg
				cfg.Sync.DryRun = cfg.Sync.DryRun || dryRun
				results, err := svc.Reconcile(ctx, &cfg)
				if err != nil {
					return err
				}
				if err := e.render(syncRows(results), func(t *table) {
					t.header("JOB", "OUTCOME", "CRON", "ENABLED", "REMOTE", "ERROR")
					for _, r := range results {
						remote := "-"
						if r.Remote != nil {
							remote = r.Remote.Cron
						}
						errText := ""
						if r.Err != nil {
							errText = r.Err.Error()
						}
						t.row(r.JobID, r.Outcome, orDash(r.Cron), r.Enabled, orDash(remote), orDash(truncate(errText, 60)))
					}
				}); err != nil {
					return err
				}
				if n := syncer.Summary(results)[syncer.OutcomeFailed]; n > 0 {
					return errors.New("some schedules failed to apply")
				}
				return nil
			}

			cfgs := e.cfgm.Subscribe(1)
			defer e.cfgm.Unsubscribe(cfgs)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return e.cfgm.Watch(gctx) })
			g.Go(func() error { return svc.Run(gctx) })
			// Moving the listener needs a restart.
			if opts, ok := e.cfg.StatusOptions(); ok {
				status := observability.New(opts, func() (any, bool) { return svc.Status() }, e.log)
				g.Go(func() error { return status.Run(gctx) })
			}
			g.Go(func() error {
				// Logging follows config reloads.
				for {
					select {
					case <-gctx.Done():
						return nil
					case c, ok := <-cfgs:
						if !ok {
							return nil
						}
						e.logs.Apply(e.logOptions(c))
					}
				}
			})
			e.log.Info("sync daemon started", logx.String("config", e.cfgm.Path()), logx.Int("jobs", len(e.cfg.Sync.Jobs)))
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "reconcile once and exit")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "with --once: report differences without saving")
	return cmd
}

type syncRow struct {
	JobID   string `json:"jobId"`
	Outcome string `json:"outcome"`
	Cron    string `json:"cron,omitempty"`
	Enabled bool   `json:"enabled"`
	Remote  string `json:"remoteCron,omitempty"`
	Error   string `json:"error,omitempty"`
}

func syncRows(results []syncer.Result) []syncRow {
	out := make([]syncRow, 0, len(results))
	for _, r := range results {
		sr := syncRow{JobID: r.JobID, Outcome: string(r.Outcome), Cron: r.Cron, Enabled: r.Enabled}
		if r.Remote != nil {
			sr.Remote = r.Remote.Cron
		}
		if r.Err != nil {
			sr.Error = r.Err.Error()
		}
		out = append(out, sr)
	}
	return out
}

func newAuditCommand(e *env) *cobra.Command {
	var (
		job   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the local history of schedule changes and runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := e.openStore()
			if err != nil {
				return err
			}
			if st == nil {
				return storage.ErrDisabled
			}
			entries, err := st.ListAudit(cmd.Context(), job, limit)
			if err != nil {
				return err
			}
			return e.render(map[string]any{"entries": entries}, func(t *table) {
				t.header("AT", "SOURCE", "ACTION", "JOB", "CRON", "ENABLED", "OK", "ERROR")
				for _, en := range entries {
					at := en.At
					t.row(ago(&at), en.Source, en.Action, en.JobID, orDash(en.Cron), en.Enabled, en.OK, orDash(truncate(en.Error, 50)))
				}
			})
		},
	}
	cmd.Flags().StringVar(&job, "job", "", "only entries for this job")
	cmd.Flags().IntVar(&limit, "limit", 20, "max entries")
	return cmd
}
