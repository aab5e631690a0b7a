// Package syncer reconciles the job schedules declared in config with the Jobs service.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"taskdeck/internal/backend"
	"taskdeck/internal/config"
	"taskdeck/internal/storage"
	logx "taskdeck/pkg/logx"
)

// Backend is the part of the Jobs service the syncer talks to.
type Backend interface {
	ListJobs(ctx context.Context) ([]backend.Job, error)
	SaveSchedule(ctx context.Context, jobID, cron string, enabled bool) (backend.Schedule, error)
}

// ConfigSource is satisfied by *config.Manager.
type ConfigSource interface {
	Get() *config.Config
	Subscribe(buffer int) chan *config.Config
	Unsubscribe(ch chan *config.Config)
}

// Alerter delivers operator alerts, e.g. *notify.Telegram.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomePlanned   Outcome = "planned" // dry run: would apply
	OutcomeUnknown   Outcome = "unknown_job"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeFailed    Outcome = "failed"
)

// Result is the reconcile outcome for one declared job.
type Result struct {
	JobID   string
	Outcome Outcome
	Cron    string
	Enabled bool
	Remote  *backend.Schedule
	Err     error
}

type Service struct {
	api   Backend
	cfgs  ConfigSource
	store storage.Store
	log   logx.Logger

	// notify sends an sd_notify state; replaced in tests.
	notify func(state string)
	alerts Alerter

	mu       sync.Mutex
	reported map[string]string
	last     PassStatus
}

func New(api Backend, cfgs ConfigSource, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		api:      api,
		cfgs:     cfgs,
		store:    store,
		log:      log.With(logx.String("component", "sync")),
		reported: map[string]string{},
	}
	s.notify = func(state string) {
		if _, err := daemon.SdNotify(false, state); err != nil {
			s.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		}
	}
	return s
}

// SetAlerter routes failures to a (nil means none). Call before Run.
func (s *Service) SetAlerter(a Alerter) { s.alerts = a }

// alert is best effort: a failed delivery is logged, never retried.
func (s *Service) alert(ctx context.Context, text string) {
	if s.alerts == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := s.alerts.Alert(actx, text); err != nil {
		s.log.Warn("alert not delivered", logx.Err(err))
	}
}

// Reconcile brings every job declared in cfg.Sync.Jobs in line with its desired
// schedule. Per-job problems are reported in the results; the error is non-nil
// only when the job list itself could not be fetched. The list is fetched even
// with nothing declared, so every pass checks the Jobs service is reachable.
func (s *Service) Reconcile(ctx context.Context, cfg *config.Config) ([]Result, error) {
	if cfg == nil {
		return nil, errors.New("sync: no config")
	}
	jobs, err := s.api.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	byID := make(map[string]backend.Job, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}

	ids := make([]string, 0, len(cfg.Sync.Jobs))
	for id := range cfg.Sync.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		r := s.reconcileJob(ctx, cfg, id, byID)
		s.record(ctx, r)
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) reconcileJob(ctx context.Context, cfg *config.Config, id string, byID map[string]backend.Job) Result {
	want := cfg.Sync.Jobs[id]
	r := Result{JobID: id, Enabled: want.Enabled}

	cron, err := want.CronSpec()
	if err != nil {
		r.Outcome, r.Err = OutcomeInvalid, err
		return r
	}
	r.Cron = cron

	job, ok := byID[id]
	if !ok {
		r.Outcome, r.Err = OutcomeUnknown, fmt.Errorf("%w: %s", backend.ErrJobNotFound, id)
		return r
	}
	remote := backend.Schedule{Cron: job.DefaultCron}
	if job.Schedule != nil {
		remote = *job.Schedule
	}
	r.Remote = &remote

	s.checkDrift(ctx, id, remote)

	if normalize(remote.Cron) == cron && remote.Enabled == want.Enabled {
		r.Outcome = OutcomeUnchanged
		return r
	}
	if cfg.Sync.DryRun {
		r.Outcome = OutcomePlanned
		return r
	}

	if _, err := s.api.SaveSchedule(ctx, id, cron, want.Enabled); err != nil {
		r.Outcome, r.Err = OutcomeFailed, err
		return r
	}
	r.Outcome = OutcomeApplied
	return r
}

// checkDrift warns when the remote schedule no longer matches what this daemon
// last applied, i.e. someone changed it by hand.
func (s *Service) checkDrift(ctx context.Context, id string, remote backend.Schedule) {
	if s.store == nil {
		return
	}
	rec, ok, err := s.store.GetSchedule(ctx, id)
	if err != nil || !ok {
		return
	}
	if normalize(rec.Cron) != normalize(remote.Cron) || rec.Enabled != remote.Enabled {
		s.log.Warn("remote schedule drifted since last sync",
			logx.String("job", id),
			logx.String("applied_cron", rec.Cron),
			logx.String("remote_cron", remote.Cron),
			logx.Time("applied_at", rec.AppliedAt),
		)
	}
}

func normalize(cron string) string { return strings.Join(strings.Fields(cron), " ") }

// record audits a result. Repeats of the previous pass's outcome for the same job
// are not written again so an idle daemon doesn't grow the audit log.
func (s *Service) record(ctx context.Context, r Result) {
	fields := []logx.Field{
		logx.String("job", r.JobID),
		logx.String("outcome", string(r.Outcome)),
		logx.String("cron", r.Cron),
		logx.Bool("enabled", r.Enabled),
	}
	switch r.Outcome {
	case OutcomeApplied:
		s.log.Info("schedule applied", fields...)
	case OutcomeUnchanged:
		s.log.Debug("schedule up to date", fields...)
	case OutcomePlanned:
		s.log.Info("schedule differs (dry run)", fields...)
	default:
		s.log.Warn("schedule not applied", append(fields, logx.Err(r.Err))...)
	}

	if r.Outcome == OutcomeUnchanged {
		s.mu.Lock()
		delete(s.reported, r.JobID)
		s.mu.Unlock()
		return
	}

	key := string(r.Outcome) + "|" + r.Cron + "|" + fmt.Sprint(r.Enabled)
	s.mu.Lock()
	seen := s.reported[r.JobID] == key
	s.reported[r.JobID] = key
	s.mu.Unlock()
	if seen && r.Outcome != OutcomeApplied {
		return
	}
	if r.Err != nil {
		s.alert(ctx, fmt.Sprintf("taskdeck sync: %s %s: %v", r.JobID, r.Outcome, r.Err))
	}
	if s.store == nil {
		return
	}

	e := storage.AuditEntry{
		At:      time.Now().UTC(),
		Source:  "sync",
		Action:  storage.ActionSyncApply,
		JobID:   r.JobID,
		Cron:    r.Cron,
		Enabled: r.Enabled,
		OK:      r.Outcome == OutcomeApplied,
	}
	if r.Outcome != OutcomeApplied && r.Outcome != OutcomeFailed {
		e.Action = storage.ActionSyncSkip
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	} else if r.Outcome == OutcomePlanned {
		e.Error = "dry run"
	}
	if err := s.store.AppendAudit(ctx, e); err != nil {
		s.log.Warn("audit write failed", logx.String("job", r.JobID), logx.Err(err))
	}
	if r.Outcome == OutcomeApplied {
		rec := storage.ScheduleRecord{JobID: r.JobID, Cron: r.Cron, Enabled: r.Enabled, AppliedAt: e.At}
		if err := s.store.PutSchedule(ctx, rec); err != nil {
			s.log.Warn("schedule record write failed", logx.String("job", r.JobID), logx.Err(err))
		}
	}
}

// Summary counts results per outcome.
func Summary(results []Result) map[Outcome]int {
	m := map[Outcome]int{}
	for _, r := range results {
		m[r.Outcome]++
	}
	return m
}
