package config

// Config is the on-disk configuration (JSON, or YAML coerced to JSON).
//
// All durations are Go duration strings (e.g. "800ms", "15s", "5m").
type Config struct {
	Backend  BackendConfig  `json:"backend"`
	Logging  LoggingConfig  `json:"logging"`
	Editor   EditorConfig   `json:"editor,omitempty"`
	Schedule ScheduleConfig `json:"schedule,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Sync     SyncConfig     `json:"sync,omitempty"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
}

// BackendConfig points at the Jobs/Settings/Integrations HTTP API.
//
// Defaults: timeout "15s", rate_per_sec 10, retry_max 3, retry_base "500ms",
// retry_max_delay "5s". Use retry_max -1 to disable retries.
type BackendConfig struct {
	BaseURL       string `json:"base_url"`
	APIToken      string `json:"api_token,omitempty"` // never logged
	Timeout       string `json:"timeout,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	JSON    bool   `json:"json,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled"`
		Path    string `json:"path"`
	} `json:"file"`
}

// EditorConfig tunes the interactive schedule editor.
type EditorConfig struct {
	// Debounce is how long the editor waits after the last change before saving. Default "800ms".
	Debounce string `json:"debounce,omitempty"`
}

type ScheduleConfig struct {
	// Timezone used for run previews (IANA name). Empty means local time.
	Timezone string `json:"timezone,omitempty"`
	// PreviewCount is how many upcoming runs are shown. Default 5.
	PreviewCount int `json:"preview_count,omitempty"`
	// StrictMonthDays keeps persisted day-of-month 29..31 as a custom cron
	// instead of clamping it to 28.
	StrictMonthDays bool `json:"strict_month_days,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/taskdeck.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SyncConfig declares the schedules the sync daemon keeps applied.
type SyncConfig struct {
	// Interval between full reconcile passes. Default "5m"; "0s" reconciles only on start and reload.
	Interval string `json:"interval,omitempty"`
	// DryRun logs what would change without saving.
	DryRun bool                   `json:"dry_run,omitempty"`
	Jobs   map[string]JobSchedule `json:"jobs,omitempty"`
	// Status enables the daemon's local /healthz (and optional pprof) endpoint.
	Status *StatusConfig `json:"status,omitempty"`
}

// StatusConfig binds the sync daemon's status server. A non-loopback addr needs a token.
type StatusConfig struct {
	Addr  string `json:"addr"`
	Token string `json:"token,omitempty"` // never logged
	Pprof bool   `json:"pprof,omitempty"`
}

// JobSchedule is either a simplified recurrence (frequency/time/days) or a raw cron.
// Cron wins when both are set.
type JobSchedule struct {
	Enabled     bool   `json:"enabled"`
	Frequency   string `json:"frequency,omitempty"`
	Time        string `json:"time,omitempty"`
	DaysOfWeek  []int  `json:"days_of_week,omitempty"`
	DaysOfMonth []int  `json:"days_of_month,omitempty"`
	Cron        string `json:"cron,omitempty"`
}

// NotifyConfig routes operator alerts. Only Telegram is supported.
type NotifyConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

// TelegramConfig sends alerts to one chat through a bot.
//
// Example:
//
//	"notify": { "telegram": { "token": "123:abc", "chat_id": -1001234 } }
type TelegramConfig struct {
	Token    string `json:"token"` // never logged
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
	APIURL   string `json:"api_url,omitempty"`
	// OnFailure alerts when a declared schedule can't be applied or the Jobs service is unreachable. Default true.
	OnFailure *bool `json:"on_failure,omitempty"`
}
