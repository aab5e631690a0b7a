// Package editor is the schedule editor state container: it applies discrete edit
// commands to a schedule.Draft and turns them into debounced save intents.
package editor

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"taskdeck/internal/backend"
	"taskdeck/internal/schedule"
	logx "taskdeck/pkg/logx"
)

// Store is the slice of the Jobs service the editor needs.
type Store interface {
	FetchSchedule(ctx context.Context, jobID string) (backend.Schedule, error)
	SaveSchedule(ctx context.Context, jobID, cron string, enabled bool) (backend.Schedule, error)
}

// Intent is what the editor asks the Jobs service to persist.
type Intent struct {
	JobID   string
	Cron    string
	Enabled bool
}

type Options struct {
	Debounce time.Duration
	Codec    schedule.Codec
	Log      logx.Logger
	// OnSave runs after every save attempt (audit trail); err is nil on success.
	OnSave func(in Intent, took time.Duration, err error)
}

// Editor owns the draft for one job. All methods are safe for concurrent use.
type Editor struct {
	jobID string
	store Store
	opt   Options
	log   logx.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	draft     schedule.Draft
	loaded    bool
	persisted Intent
	nextRunAt *time.Time
	pending   *Intent
	timer     *time.Timer
	gen       uint64
	closed    bool
	lastErr   error

	saveMu sync.Mutex

	events *fanout
}

func New(jobID string, store Store, opt Options) *Editor {
	if opt.Debounce <= 0 {
		opt.Debounce = 800 * time.Millisecond
	}
	log := opt.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Editor{
		jobID:  strings.TrimSpace(jobID),
		store:  store,
		opt:    opt,
		log:    log.With(logx.String("component", "editor"), logx.String("job", jobID)),
		ctx:    ctx,
		cancel: cancel,
		events: newFanout(),
	}
}

var (
	ErrNotLoaded = errors.New("editor: schedule not loaded")
	ErrClosed    = errors.New("editor: closed")
)

// Load fetches the persisted schedule and resets the draft to it.
func (e *Editor) Load(ctx context.Context) (schedule.Draft, error) {
	s, err := e.store.FetchSchedule(ctx, e.jobID)
	if err != nil {
		return schedule.Draft{}, err
	}
	d := e.opt.Codec.Decode(s.Cron, s.Enabled)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimerLocked()
	e.draft = d
	e.loaded = true
	e.persisted = Intent{JobID: e.jobID, Cron: strings.TrimSpace(s.Cron), Enabled: s.Enabled}
	e.nextRunAt = s.NextRunAt
	e.lastErr = nil
	if d.IsAdvanced() {
		e.log.Info("schedule not representable in simplified form; keeping custom cron", logx.String("cron", d.AdvancedCron))
	}
	return d.Clone(), nil
}

func (e *Editor) ToggleEnabled() error {
	return e.apply(func(d *schedule.Draft) { d.Enabled = !d.Enabled })
}

func (e *Editor) SetEnabled(on bool) error {
	return e.apply(func(d *schedule.Draft) { d.Enabled = on })
}

func (e *Editor) SetFrequency(f schedule.Frequency) error {
	return e.apply(func(d *schedule.Draft) {
		d.Frequency = f
		d.AdvancedCron = ""
	})
}

func (e *Editor) SetTime(hhmm string) error {
	return e.apply(func(d *schedule.Draft) {
		d.Time = strings.TrimSpace(hhmm)
		d.AdvancedCron = ""
	})
}

// SelectDay toggles day in the selection of the active frequency
// (weekday 0..6 for weekly, day-of-month for monthly). It is a no-op for daily.
func (e *Editor) SelectDay(day int) error {
	return e.apply(func(d *schedule.Draft) {
		switch d.Frequency {
		case schedule.Weekly:
			d.DaysOfWeek = toggle(d.DaysOfWeek, day)
		case schedule.Monthly:
			d.DaysOfMonth = toggle(d.DaysOfMonth, day)
		default:
			return
		}
		d.AdvancedCron = ""
	})
}

// SetDays replaces the day selection of the active frequency.
func (e *Editor) SetDays(days []int) error {
	return e.apply(func(d *schedule.Draft) {
		switch d.Frequency {
		case schedule.Weekly:
			d.DaysOfWeek = slices.Clone(days)
		case schedule.Monthly:
			d.DaysOfMonth = slices.Clone(days)
		default:
			return
		}
		d.AdvancedCron = ""
	})
}

// UseAdvancedCron replaces the schedule with a raw cron expression.
func (e *Editor) UseAdvancedCron(expr string) error {
	if err := schedule.ValidateCron(expr); err != nil {
		return err
	}
	return e.apply(func(d *schedule.Draft) {
		enabled := d.Enabled
		*d = e.opt.Codec.Decode(strings.Join(strings.Fields(expr), " "), enabled)
	})
}

func toggle(days []int, day int) []int {
	if i := slices.Index(days, day); i >= 0 {
		return slices.Delete(slices.Clone(days), i, i+1)
	}
	out := append(slices.Clone(days), day)
	slices.Sort(out)
	return out
}

func (e *Editor) apply(mut func(d *schedule.Draft)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.loaded {
		return ErrNotLoaded
	}
	d := e.draft.Clone()
	mut(&d)
	e.draft = d
	e.rescheduleLocked()
	return nil
}

// intentLocked derives the save intent for the current draft.
// A draft carrying an advanced cron saves that cron verbatim.
func (e *Editor) intentLocked() (Intent, bool) {
	if e.draft.IsAdvanced() {
		return Intent{JobID: e.jobID, Cron: e.draft.AdvancedCron, Enabled: e.draft.Enabled}, true
	}
	cron, ok := e.opt.Codec.Encode(e.draft)
	if !ok {
		return Intent{}, false
	}
	return Intent{JobID: e.jobID, Cron: cron, Enabled: e.draft.Enabled}, true
}

func (e *Editor) rescheduleLocked() {
	e.stopTimerLocked()
	in, ok := e.intentLocked()
	if !ok {
		e.events.publish(Event{Kind: EventInvalid, JobID: e.jobID, Draft: e.draft.Clone()})
		return
	}
	if in == e.persisted {
		return
	}
	e.armLocked(in)
}

func (e *Editor) armLocked(in Intent) {
	e.pending = &in
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(e.opt.Debounce, func() { e.fire(gen) })
}

func (e *Editor) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.pending = nil
	e.gen++
}

func (e *Editor) fire(gen uint64) {
	e.mu.Lock()
	if gen != e.gen || e.pending == nil || e.closed {
		e.mu.Unlock()
		return
	}
	in := *e.pending
	e.mu.Unlock()

	_ = e.save(e.ctx, in, gen)
}

// Flush saves the pending intent now instead of waiting for the debounce.
// It returns nil when nothing is pending.
func (e *Editor) Flush(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.pending == nil {
		e.mu.Unlock()
		return nil
	}
	in := *e.pending
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	gen := e.gen
	e.mu.Unlock()

	return e.save(ctx, in, gen)
}

func (e *Editor) save(ctx context.Context, in Intent, gen uint64) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	stale := gen != e.gen || e.pending == nil
	e.mu.Unlock()
	if stale {
		return nil
	}

	started := time.Now()
	s, err := e.store.SaveSchedule(ctx, in.JobID, in.Cron, in.Enabled)
	took := time.Since(started)
	if e.opt.OnSave != nil {
		e.opt.OnSave(in, took, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.lastErr = err
		e.log.Warn("schedule save failed", logx.String("cron", in.Cron), logx.Bool("enabled", in.Enabled), logx.Err(err))
		e.events.publish(Event{Kind: EventSaveFailed, JobID: e.jobID, Intent: in, Err: err})
		return err
	}

	e.lastErr = nil
	e.persisted = Intent{JobID: e.jobID, Cron: strings.TrimSpace(s.Cron), Enabled: s.Enabled}
	if e.persisted.Cron == "" {
		e.persisted = in
	}
	e.nextRunAt = s.NextRunAt
	switch {
	case gen == e.gen:
		e.pending = nil
		e.timer = nil
	case e.pending == nil && !e.closed:
		// Edited back to the old persisted value while this save was in flight:
		// the draft now differs from what was just stored.
		if next, ok := e.intentLocked(); ok && next != e.persisted {
			e.armLocked(next)
		}
	}
	e.log.Info("schedule saved", logx.String("cron", in.Cron), logx.Bool("enabled", in.Enabled), logx.Duration("took", took))
	e.events.publish(Event{Kind: EventSaved, JobID: e.jobID, Intent: in})
	return nil
}

// Close cancels any pending save and in-flight request and closes subscriptions.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopTimerLocked()
	e.mu.Unlock()

	e.cancel()
	e.events.close()
}

// Subscribe returns a channel of editor events. Delivery never blocks the editor;
// a full subscriber misses events.
func (e *Editor) Subscribe(buffer int) (<-chan Event, func()) {
	return e.events.subscribe(buffer)
}

// State is a point-in-time view of the editor.
type State struct {
	JobID     string
	Draft     schedule.Draft
	Valid     bool
	Cron      string
	Dirty     bool
	Pending   bool
	Persisted Intent
	NextRunAt *time.Time
	LastErr   error
}

func (e *Editor) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	in, ok := e.intentLocked()
	return State{
		JobID:     e.jobID,
		Draft:     e.draft.Clone(),
		Valid:     ok,
		Cron:      in.Cron,
		Dirty:     ok && in != e.persisted,
		Pending:   e.pending != nil,
		Persisted: e.persisted,
		NextRunAt: e.nextRunAt,
		LastErr:   e.lastErr,
	}
}

// Preview projects the next count runs of the current draft from now.
func (e *Editor) Preview(count int, now time.Time) []time.Time {
	e.mu.Lock()
	d := e.draft.Clone()
	e.mu.Unlock()
	return schedule.Preview(d, count, now)
}
