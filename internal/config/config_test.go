package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const yamlConfig = `
backend:
  base_url: http://localhost:3210
  api_token: s3cret
  timeout: 10s
  retry_max: 2
logging:
  level: debug
  console: true
editor:
  debounce: 500ms
schedule:
  timezone: UTC
  preview_count: 3
storage:
  driver: file
  path: ./data/taskdeck
sync:
  interval: 1m
  jobs:
    monitorConfirm:
      enabled: true
      frequency: weekly
      time: "09:00"
      days_of_week: [1, 3]
    mediaAddedCleanup:
      enabled: true
      cron: "*/30   * * * *"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, t.TempDir(), "taskdeck.yaml", yamlConfig))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit the config")
	}

	bo, err := cfg.BackendOptions()
	if err != nil {
		t.Fatalf("BackendOptions: %v", err)
	}
	if bo.BaseURL != "http://localhost:3210" || bo.Timeout != 10*time.Second || bo.RetryMax != 2 {
		t.Fatalf("unexpected backend options: %+v", bo)
	}
	if d, _ := cfg.Debounce(); d != 500*time.Millisecond {
		t.Fatalf("Debounce = %v", d)
	}
	if cfg.PreviewCount() != 3 {
		t.Fatalf("PreviewCount = %d", cfg.PreviewCount())
	}

	cron, err := cfg.Sync.Jobs["monitorConfirm"].CronSpec()
	if err != nil || cron != "0 9 * * 1,3" {
		t.Fatalf("monitorConfirm cron = %q, %v", cron, err)
	}
	cron, err = cfg.Sync.Jobs["mediaAddedCleanup"].CronSpec()
	if err != nil || cron != "*/30 * * * *" {
		t.Fatalf("mediaAddedCleanup cron = %q, %v", cron, err)
	}

	d, err := JobSchedule{Frequency: "weekly", Time: "9:00", DaysOfWeek: []int{3, 1, 3}}.Draft()
	if err != nil || !slices.Equal(d.DaysOfWeek, []int{1, 3}) {
		t.Fatalf("Draft days = %v, %v", d.DaysOfWeek, err)
	}
	if cron, err := (JobSchedule{Cron: "0 9 * * 1,7"}).CronSpec(); err != nil || cron != "0 9 * * 1,7" {
		t.Fatalf("Sunday as 7 = %q, %v", cron, err)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.json", []byte(`{"backend":{"base_url":"http://x"},"bogus":1}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	if _, err := Decode("c.json", []byte(`{"backend":{"base_url":"http://x"}} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
	cfg, err := Decode("c.json", []byte(`{"backend":{"base_url":"http://x"},"logging":{"level":"info","console":true,"file":{"enabled":false,"path":""}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.PreviewCount() != DefaultPreviewCount {
		t.Fatalf("PreviewCount default = %d", cfg.PreviewCount())
	}
	if d, _ := cfg.SyncInterval(); d != DefaultSyncInterval {
		t.Fatalf("SyncInterval default = %v", d)
	}
	if st, err := cfg.StorageOptions(); err != nil || st.Driver != "" {
		t.Fatalf("StorageOptions default = %+v, %v", st, err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Editor:   EditorConfig{Debounce: "soon"},
		Schedule: ScheduleConfig{Timezone: "Mars/Olympus"},
		Sync: SyncConfig{Jobs: map[string]JobSchedule{
			"weeklyEmpty": {Enabled: true, Frequency: "weekly", Time: "09:00"},
			"badCron":     {Cron: "99 * * * *"},
			"badFreq":     {Frequency: "hourly", Time: "09:00"},
		}, Status: &StatusConfig{Pprof: true}},
		Notify: NotifyConfig{Telegram: &TelegramConfig{Token: "123:abc"}},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"backend.base_url", "editor.debounce", "schedule.timezone", "sync.jobs.weeklyEmpty", "sync.jobs.badCron", "sync.jobs.badFreq", "sync.status.addr", "notify.telegram.chat_id"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestStatusOptions(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	if _, ok := cfg.StatusOptions(); ok {
		t.Fatal("status should be off without sync.status")
	}
	cfg.Sync.Status = &StatusConfig{Addr: " 127.0.0.1:6061 ", Token: "t", Pprof: true}
	opts, ok := cfg.StatusOptions()
	if !ok || opts.Addr != "127.0.0.1:6061" || opts.Token != "t" || !opts.Pprof {
		t.Fatalf("StatusOptions = %+v, %v", opts, ok)
	}

	next := *cfg
	next.Sync.Status = &StatusConfig{Addr: "127.0.0.1:6062"}
	if sections, _ := SummarizeChange(cfg, &next); !slices.Equal(sections, []string{"sync"}) {
		t.Fatalf("sections = %v", sections)
	}
}

func TestTelegramOptions(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	if _, ok := cfg.TelegramOptions(); ok || cfg.AlertOnFailure() {
		t.Fatal("telegram should be off without notify.telegram")
	}
	cfg.Notify.Telegram = &TelegramConfig{Token: " 123:abc ", ChatID: -100, ThreadID: 4}
	opts, ok := cfg.TelegramOptions()
	if !ok || opts.Token != "123:abc" || opts.ChatID != -100 || opts.ThreadID != 4 {
		t.Fatalf("TelegramOptions = %+v, %v", opts, ok)
	}
	if !cfg.AlertOnFailure() {
		t.Fatal("failure alerts should default on")
	}
	off := false
	cfg.Notify.Telegram.OnFailure = &off
	if cfg.AlertOnFailure() {
		t.Fatal("on_failure: false should silence failure alerts")
	}

	next := *cfg
	next.Notify = NotifyConfig{}
	sections, fields := SummarizeChange(cfg, &next)
	if !slices.Equal(sections, []string{"notify"}) || len(fields) != 0 {
		t.Fatalf("sections = %v, fields = %d", sections, len(fields))
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{
		Backend: BackendConfig{BaseURL: "http://a", APIToken: "one"},
		Sync: SyncConfig{Jobs: map[string]JobSchedule{
			"a": {Frequency: "daily", Time: "01:00"},
			"b": {Frequency: "daily", Time: "02:00"},
		}},
	}
	newCfg := &Config{
		Backend: BackendConfig{BaseURL: "http://a", APIToken: "two"},
		Sync: SyncConfig{Jobs: map[string]JobSchedule{
			"a": {Frequency: "daily", Time: "01:30"},
			"c": {Frequency: "daily", Time: "03:00"},
		}},
	}
	sections, _ := SummarizeChange(oldCfg, newCfg)
	if !slices.Equal(sections, []string{"backend", "sync"}) {
		t.Fatalf("sections = %v", sections)
	}
	if jobs := ChangedJobs(oldCfg, newCfg); !slices.Equal(jobs, []string{"a", "b", "c"}) {
		t.Fatalf("changed jobs = %v", jobs)
	}
	if sections, _ := SummarizeChange(newCfg, newCfg); len(sections) != 0 {
		t.Fatalf("expected no changes, got %v", sections)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "taskdeck.json", `{"backend":{"base_url":"http://one"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to register before editing.
	deadline := time.Now().Add(5 * time.Second)
	next := 0
	for {
		next++
		content := `{"backend":{"base_url":"http://two"},"sync":{"interval":"` + time.Duration(next).String() + `"}}`
		writeFile(t, dir, "taskdeck.json", content)
		select {
		case cfg := <-sub:
			if cfg.Backend.BaseURL != "http://two" {
				t.Fatalf("unexpected published config: %+v", cfg.Backend)
			}
			cancel()
			<-done
			return
		case <-time.After(400 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("no reload published")
		}
	}
}

func TestReloadRejectsInvalid(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "taskdeck.json", `{"backend":{"base_url":"http://one"}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	writeFile(t, dir, "taskdeck.json", `{"backend":{"base_url":""}}`)
	if ok, err := m.Reload(); ok || err == nil {
		t.Fatalf("Reload = %v, %v; want rejection", ok, err)
	}
	if m.Get().Backend.BaseURL != "http://one" {
		t.Fatal("rejected reload must keep the previous config")
	}
	writeFile(t, dir, "taskdeck.json", `{"backend":{"base_url":"http://one"}}`)
	if ok, err := m.Reload(); ok || err != nil {
		t.Fatalf("unchanged Reload = %v, %v", ok, err)
	}
}
