package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"taskdeck/internal/backend"
	"taskdeck/internal/notify"
	"taskdeck/internal/observability"
	"taskdeck/internal/schedule"
	"taskdeck/internal/storage"
	logx "taskdeck/pkg/logx"
)

const (
	DefaultDebounce     = 800 * time.Millisecond
	DefaultPreviewCount = 5
	DefaultSyncInterval = 5 * time.Minute
)

func parseDuration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func durationOr(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	return parseDuration(path, s)
}

// BackendOptions converts the backend section for backend.New.
func (c *Config) BackendOptions() (backend.Config, error) {
	b := c.Backend
	if strings.TrimSpace(b.BaseURL) == "" {
		return backend.Config{}, errors.New("backend.base_url is required")
	}
	timeout, err := parseDuration("backend.timeout", b.Timeout)
	if err != nil {
		return backend.Config{}, err
	}
	base, err := parseDuration("backend.retry_base", b.RetryBase)
	if err != nil {
		return backend.Config{}, err
	}
	maxDelay, err := parseDuration("backend.retry_max_delay", b.RetryMaxDelay)
	if err != nil {
		return backend.Config{}, err
	}
	return backend.Config{
		BaseURL:       strings.TrimSpace(b.BaseURL),
		APIToken:      b.APIToken,
		Timeout:       timeout,
		RatePerSec:    b.RatePerSec,
		RetryMax:      b.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

func (c *Config) LogOptions() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		JSON:    c.Logging.JSON,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}

// StorageOptions returns a disabled config when the section is omitted.
func (c *Config) StorageOptions() (storage.Config, error) {
	if c.Storage == nil {
		return storage.Config{}, nil
	}
	bt, err := parseDuration("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: c.Storage.Driver, Path: c.Storage.Path, BusyTimeout: bt}, nil
}

func (c *Config) Debounce() (time.Duration, error) {
	return durationOr("editor.debounce", c.Editor.Debounce, DefaultDebounce)
}

func (c *Config) SyncInterval() (time.Duration, error) {
	return durationOr("sync.interval", c.Sync.Interval, DefaultSyncInterval)
}

func (c *Config) PreviewCount() int {
	if c.Schedule.PreviewCount > 0 {
		return c.Schedule.PreviewCount
	}
	return DefaultPreviewCount
}

// Location loads schedule.timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Schedule.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

// StatusOptions reports whether the status server is configured.
func (c *Config) StatusOptions() (observability.Config, bool) {
	st := c.Sync.Status
	if st == nil || strings.TrimSpace(st.Addr) == "" {
		return observability.Config{}, false
	}
	return observability.Config{Addr: strings.TrimSpace(st.Addr), Token: st.Token, Pprof: st.Pprof}, true
}

// TelegramOptions reports whether Telegram alerts are configured.
func (c *Config) TelegramOptions() (notify.Config, bool) {
	tg := c.Notify.Telegram
	if tg == nil || strings.TrimSpace(tg.Token) == "" {
		return notify.Config{}, false
	}
	return notify.Config{
		Token:    strings.TrimSpace(tg.Token),
		ChatID:   tg.ChatID,
		ThreadID: tg.ThreadID,
		APIURL:   strings.TrimSpace(tg.APIURL),
	}, true
}

// AlertOnFailure reports whether the sync daemon should send failure alerts.
func (c *Config) AlertOnFailure() bool {
	if _, ok := c.TelegramOptions(); !ok {
		return false
	}
	return c.Notify.Telegram.OnFailure == nil || *c.Notify.Telegram.OnFailure
}

func (c *Config) Codec() schedule.Codec {
	return schedule.Codec{StrictMonthDays: c.Schedule.StrictMonthDays}
}

// CronSpec resolves a declared job schedule to the cron string the Jobs service stores.
func (j JobSchedule) CronSpec() (string, error) {
	if raw := strings.TrimSpace(j.Cron); raw != "" {
		if err := schedule.ValidateCron(raw); err != nil {
			return "", err
		}
		return strings.Join(strings.Fields(raw), " "), nil
	}
	d, err := j.Draft()
	if err != nil {
		return "", err
	}
	cron, ok := schedule.Encode(d)
	if !ok {
		return "", fmt.Errorf("schedule %q cannot be encoded (check time and selected days)", schedule.Describe(d))
	}
	return cron, nil
}

// Draft builds the simplified draft for a job declared without a raw cron.
func (j JobSchedule) Draft() (schedule.Draft, error) {
	freq, err := schedule.ParseFrequency(j.Frequency)
	if err != nil {
		return schedule.Draft{}, err
	}
	return schedule.Draft{
		Enabled:     j.Enabled,
		Frequency:   freq,
		Time:        strings.TrimSpace(j.Time),
		DaysOfWeek:  j.DaysOfWeek,
		DaysOfMonth: j.DaysOfMonth,
	}.Normalized(), nil
}

// Validate checks every section so a bad reload is rejected before it's committed.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" {
		if _, err := logx.ParseLevel(lvl); err != nil {
			errs = append(errs, fmt.Errorf("logging.level: %w", err))
		}
	}
	if _, err := c.BackendOptions(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.StorageOptions(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Debounce(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SyncInterval(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if st := c.Sync.Status; st != nil && strings.TrimSpace(st.Addr) == "" {
		errs = append(errs, errors.New("sync.status.addr is required when sync.status is set"))
	}
	if tg := c.Notify.Telegram; tg != nil {
		if strings.TrimSpace(tg.Token) == "" {
			errs = append(errs, errors.New("notify.telegram.token is required when notify.telegram is set"))
		}
		if tg.ChatID == 0 {
			errs = append(errs, errors.New("notify.telegram.chat_id is required when notify.telegram is set"))
		}
	}

	ids := make([]string, 0, len(c.Sync.Jobs))
	for id := range c.Sync.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, errors.New("sync.jobs: empty job id"))
			continue
		}
		if _, err := c.Sync.Jobs[id].CronSpec(); err != nil {
			errs = append(errs, fmt.Errorf("sync.jobs.%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
