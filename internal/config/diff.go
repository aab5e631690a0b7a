package config

import (
	"reflect"
	"sort"
	"strings"

	logx "taskdeck/pkg/logx"
)

// SummarizeChange returns the changed top-level sections and safe structured
// fields for logging. Tokens are reported only as "set"/"unset".
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	fields := make([]logx.Field, 0, 12)

	ob, nb := oldCfg.Backend, newCfg.Backend
	tokenChanged := strings.TrimSpace(ob.APIToken) != strings.TrimSpace(nb.APIToken)
	ob.APIToken, nb.APIToken = "", ""
	if ob != nb || tokenChanged {
		changed = append(changed, "backend")
		fields = append(fields,
			logx.String("backend.base_url", strings.TrimSpace(nb.BaseURL)),
			logx.Bool("backend.token_set", strings.TrimSpace(newCfg.Backend.APIToken) != ""),
			logx.Bool("backend.token_changed", tokenChanged),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Editor != newCfg.Editor {
		changed = append(changed, "editor")
		fields = append(fields, logx.String("editor.debounce", newCfg.Editor.Debounce))
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		fields = append(fields,
			logx.String("schedule.timezone", newCfg.Schedule.Timezone),
			logx.Bool("schedule.strict_month_days", newCfg.Schedule.StrictMonthDays),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if newCfg.Storage != nil {
			fields = append(fields, logx.String("storage.driver", newCfg.Storage.Driver))
		}
	}

	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		if tg := newCfg.Notify.Telegram; tg != nil {
			fields = append(fields,
				logx.Bool("notify.telegram.token_set", strings.TrimSpace(tg.Token) != ""),
				logx.Bool("notify.telegram.chat_set", tg.ChatID != 0),
			)
		}
	}

	jobs := ChangedJobs(oldCfg, newCfg)
	statusChanged := !reflect.DeepEqual(oldCfg.Sync.Status, newCfg.Sync.Status)
	if oldCfg.Sync.Interval != newCfg.Sync.Interval || oldCfg.Sync.DryRun != newCfg.Sync.DryRun || len(jobs) > 0 || statusChanged {
		changed = append(changed, "sync")
		fields = append(fields,
			logx.String("sync.interval", newCfg.Sync.Interval),
			logx.Bool("sync.dry_run", newCfg.Sync.DryRun),
			logx.Strings("sync.changed_jobs", jobs),
		)
		if statusChanged && newCfg.Sync.Status != nil {
			fields = append(fields,
				logx.String("sync.status.addr", newCfg.Sync.Status.Addr),
				logx.Bool("sync.status.token_set", newCfg.Sync.Status.Token != ""),
			)
		}
	}
	return changed, fields
}

// ChangedJobs lists job ids whose declared schedule was added, removed or edited.
func ChangedJobs(oldCfg, newCfg *Config) []string {
	seen := map[string]struct{}{}
	var out []string
	for id, nj := range newCfg.Sync.Jobs {
		seen[id] = struct{}{}
		if oj, ok := oldCfg.Sync.Jobs[id]; !ok || !reflect.DeepEqual(oj, nj) {
			out = append(out, id)
		}
	}
	for id := range oldCfg.Sync.Jobs {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
