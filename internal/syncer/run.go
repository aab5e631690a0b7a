package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskdeck/internal/config"
	logx "taskdeck/pkg/logx"
)

func interval(cfg *config.Config) time.Duration {
	d, err := cfg.SyncInterval()
	if err != nil {
		return config.DefaultSyncInterval
	}
	return d
}

// Run reconciles once at start, after every config reload and every sync.interval
// (never, when the interval is zero) until ctx ends. systemd is told READY=1
// after the first pass and STOPPING=1 on exit; when the unit has WatchdogSec
// set, keep-alives are sent as well.
func (s *Service) Run(ctx context.Context) error {
	cfg := s.cfgs.Get()
	if cfg == nil {
		return fmt.Errorf("sync: config not loaded")
	}
	sub := s.cfgs.Subscribe(1)
	defer s.cfgs.Unsubscribe(sub)

	s.pass(ctx, cfg, "start")
	s.notify(daemon.SdNotifyReady)
	defer s.notify(daemon.SdNotifyStopping)

	var (
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	arm := func(d time.Duration) {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		if d > 0 {
			ticker = time.NewTicker(d)
			tick = ticker.C
		}
	}
	every := interval(cfg)
	arm(every)
	defer arm(0)

	var watchdog <-chan time.Time
	if wd, err := daemon.SdWatchdogEnabled(false); err == nil && wd > 0 {
		t := time.NewTicker(wd / 2)
		defer t.Stop()
		watchdog = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case next, ok := <-sub:
			if !ok {
				return nil
			}
			cfg = next
			if d := interval(cfg); d != every {
				every = d
				arm(every)
				s.log.Info("sync interval changed", logx.Duration("interval", every))
			}
			s.pass(ctx, cfg, "reload")
		case <-tick:
			s.pass(ctx, cfg, "interval")
		case <-watchdog:
			s.notify(daemon.SdNotifyWatchdog)
		}
	}
}

// PassStatus describes the most recent reconcile pass.
type PassStatus struct {
	Passes  int       `json:"passes"`
	At      time.Time `json:"at"`
	Reason  string    `json:"reason"`
	TookMS  int64     `json:"tookMs"`
	Jobs    int       `json:"jobs"`
	Applied int       `json:"applied"`
	Failed  int       `json:"failed"`
	DryRun  bool      `json:"dryRun"`
	Error   string    `json:"error,omitempty"`
}

// Status returns the last pass and whether the daemon is healthy: at least one
// pass ran and the last one could reach the Jobs service.
func (s *Service) Status() (PassStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.last.Passes > 0 && s.last.Error == ""
}

func (s *Service) pass(ctx context.Context, cfg *config.Config, reason string) {
	started := time.Now()
	results, err := s.Reconcile(ctx, cfg)
	sum := Summary(results)

	s.mu.Lock()
	wasDown := s.last.Error != ""
	s.last = PassStatus{
		Passes:  s.last.Passes + 1,
		At:      started.UTC(),
		Reason:  reason,
		TookMS:  time.Since(started).Milliseconds(),
		Jobs:    len(results),
		Applied: sum[OutcomeApplied],
		Failed:  sum[OutcomeFailed],
		DryRun:  cfg.Sync.DryRun,
	}
	if err != nil {
		s.last.Error = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("sync pass failed", logx.String("reason", reason), logx.Err(err))
			s.notify("STATUS=sync failed: " + err.Error())
			if !wasDown {
				s.alert(ctx, "taskdeck sync: cannot reach the Jobs service: "+err.Error())
			}
		}
		return
	}
	if wasDown {
		s.alert(ctx, "taskdeck sync: Jobs service reachable again")
	}
	s.log.Info("sync pass done",
		logx.String("reason", reason),
		logx.Int("jobs", len(results)),
		logx.Int("applied", sum[OutcomeApplied]),
		logx.Int("failed", sum[OutcomeFailed]),
		logx.Bool("dry_run", cfg.Sync.DryRun),
		logx.Duration("took", time.Since(started)),
	)
	s.notify(fmt.Sprintf("STATUS=%d jobs, %d applied, %d failed", len(results), sum[OutcomeApplied], sum[OutcomeFailed]))
}
