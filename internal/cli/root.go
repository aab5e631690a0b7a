// Package cli wires the taskdeck commands: job listing and runs, schedule
// editing, settings, integration probes, run health and the sync daemon.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskdeck/internal/backend"
	"taskdeck/internal/config"
	"taskdeck/internal/storage"
	logx "taskdeck/pkg/logx"
)

const defaultConfigPath = "./taskdeck.yaml"

// env is the state shared by every command of one invocation.
type env struct {
	cfgPath  string
	logLevel string
	output   string

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfgm  *config.Manager
	cfg   *config.Config
	logs  *logx.Service
	log   logx.Logger
	api   *backend.Client
	store storage.Store
	// storeOpened is set once Open ran, even when storage is disabled.
	storeOpened bool
}

func newEnv(in io.Reader, out, errOut io.Writer) *env {
	return &env{in: in, out: out, errOut: errOut, log: logx.Nop()}
}

// newRootCommand builds the command tree bound to e.
func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "taskdeck",
		Short:         "Manage scheduled maintenance jobs",
		Long:          "taskdeck lists and runs jobs, edits their schedules and keeps declared schedules in sync with the Jobs service.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup()
		},
	}
	root.SetIn(e.in)
	root.SetOut(e.out)
	root.SetErr(e.errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&e.cfgPath, "config", "c", envOr("TASKDECK_CONFIG", defaultConfigPath), "config file (JSON or YAML)")
	pf.StringVar(&e.logLevel, "log-level", "", "override logging.level (trace|debug|info|warn|error)")
	pf.StringVarP(&e.output, "output", "o", "table", "output format: table|json|yaml")

	root.AddCommand(
		newJobsCommand(e),
		newRunCommand(e),
		newRunsCommand(e),
		newScheduleCommand(e),
		newSettingsCommand(e),
		newIntegrationsCommand(e),
		newSyncCommand(e),
		newAuditCommand(e),
		newHealthCommand(e),
	)
	return root
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) setup() error {
	switch e.output {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown --output %q (want table, json or yaml)", e.output)
	}

	e.cfgm = config.NewManager(e.cfgPath)
	cfg, err := e.cfgm.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", e.cfgPath, err)
	}
	e.cfg = cfg

	if e.logLevel != "" {
		if _, err := logx.ParseLevel(e.logLevel); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}
	e.logs, e.log = logx.NewWithOutput(e.logOptions(cfg), e.errOut)
	e.cfgm.SetLogger(e.log)
	return nil
}

// logOptions applies the --log-level override on top of cfg.
func (e *env) logOptions(cfg *config.Config) logx.Config {
	opts := cfg.LogOptions()
	if e.logLevel != "" {
		opts.Level = e.logLevel
	}
	return opts
}

func (e *env) client() (*backend.Client, error) {
	if e.api != nil {
		return e.api, nil
	}
	opts, err := e.cfg.BackendOptions()
	if err != nil {
		return nil, err
	}
	c, err := backend.New(opts, e.log)
	if err != nil {
		return nil, err
	}
	e.api = c
	return c, nil
}

// openStore opens the configured store once. It returns nil when storage is disabled.
func (e *env) openStore() (storage.Store, error) {
	if e.storeOpened {
		return e.store, nil
	}
	opts, err := e.cfg.StorageOptions()
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(opts, e.log)
	if err != nil {
		return nil, err
	}
	e.store, e.storeOpened = st, true
	return st, nil
}

// audit records a change when storage is enabled. Failures are logged, never returned.
func (e *env) audit(ctx context.Context, entry storage.AuditEntry) {
	st, err := e.openStore()
	if err != nil {
		e.log.Warn("storage unavailable; audit skipped", logx.Err(err))
		return
	}
	if st == nil {
		return
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	if entry.Source == "" {
		entry.Source = "cli"
	}
	if err := st.AppendAudit(ctx, entry); err != nil {
		e.log.Warn("audit write failed", logx.String("action", entry.Action), logx.Err(err))
	}
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.log.Warn("storage close failed", logx.Err(err))
		}
	}
	if e.logs != nil {
		_ = e.logs.Close()
	}
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	e := newEnv(in, out, errOut)
	defer e.close()

	root := newRootCommand(e)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return 130
		}
		fmt.Fprintln(errOut, "error:", err)
		if backend.IsNotFound(err) {
			fmt.Fprintln(errOut, "hint: `taskdeck jobs` lists the known job ids")
		}
		return 1
	}
	return 0
}
