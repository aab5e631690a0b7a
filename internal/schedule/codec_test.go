package schedule

import (
	"reflect"
	"testing"
)

func TestDecodeVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cron    string
		enabled bool
		want    Draft
	}{
		{
			name:    "daily",
			cron:    "30 3 * * *",
			enabled: true,
			want:    Draft{Enabled: true, Frequency: Daily, Time: "03:30", DaysOfWeek: []int{1}, DaysOfMonth: []int{1}},
		},
		{
			name:    "weekly with sunday as 7",
			cron:    "0 9 * * 1,7",
			enabled: true,
			want:    Draft{Enabled: true, Frequency: Weekly, Time: "09:00", DaysOfWeek: []int{0, 1}, DaysOfMonth: []int{1}},
		},
		{
			name: "weekly duplicates collapse",
			cron: "5 23 * * 3,0,3,7",
			want: Draft{Frequency: Weekly, Time: "23:05", DaysOfWeek: []int{0, 3}, DaysOfMonth: []int{1}},
		},
		{
			name:    "monthly",
			cron:    "5 14 15,1 * *",
			enabled: true,
			want:    Draft{Enabled: true, Frequency: Monthly, Time: "14:05", DaysOfWeek: []int{1}, DaysOfMonth: []int{1, 15}},
		},
		{
			name: "monthly late days clamp to 28",
			cron: "0 0 1,30,31 * *",
			want: Draft{Frequency: Monthly, Time: "00:00", DaysOfWeek: []int{1}, DaysOfMonth: []int{1, 28}},
		},
		{
			name: "surrounding whitespace",
			cron: "  59\t23 * *  * ",
			want: Draft{Frequency: Daily, Time: "23:59", DaysOfWeek: []int{1}, DaysOfMonth: []int{1}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.cron, tt.enabled)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Decode(%q) = %+v, want %+v", tt.cron, got, tt.want)
			}
		})
	}
}

func TestDecodeFallback(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cron string
	}{
		{name: "step syntax", cron: "*/5 * * * *"},
		{name: "too few fields", cron: "0 3 * *"},
		{name: "too many fields", cron: "0 0 3 * * *"},
		{name: "month restricted", cron: "0 3 * 1 *"},
		{name: "minute out of range", cron: "60 3 * * *"},
		{name: "hour out of range", cron: "0 24 * * *"},
		{name: "negative hour", cron: "0 -1 * * *"},
		{name: "signed minute", cron: "+5 3 * * *"},
		{name: "both day fields set", cron: "0 3 1 * 1"},
		{name: "weekday out of range", cron: "0 3 * * 8"},
		{name: "weekday range syntax", cron: "0 3 * * 1-5"},
		{name: "month day zero", cron: "0 3 0 * *"},
		{name: "month day 32", cron: "0 3 32 * *"},
		{name: "empty list item", cron: "0 3 * * 1,,2"},
		{name: "descriptor", cron: "@daily"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.cron, true)
			want := FallbackDraft(tt.cron, true)
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("Decode(%q) = %+v, want fallback %+v", tt.cron, got, want)
			}
			if got.AdvancedCron != tt.cron {
				t.Fatalf("AdvancedCron = %q, want %q", got.AdvancedCron, tt.cron)
			}
		})
	}
}

func TestDecodeFallbackShape(t *testing.T) {
	t.Parallel()
	got := Decode("  */5 * * * *  ", false)
	if got.Enabled {
		t.Fatal("enabled must be preserved from the caller")
	}
	if got.Frequency != Daily || got.Time != "03:00" {
		t.Fatalf("unexpected fallback: %+v", got)
	}
	if !reflect.DeepEqual(got.DaysOfWeek, []int{1}) || !reflect.DeepEqual(got.DaysOfMonth, []int{1}) {
		t.Fatalf("unexpected fallback days: %+v", got)
	}
	if got.AdvancedCron != "*/5 * * * *" {
		t.Fatalf("AdvancedCron = %q, want trimmed input", got.AdvancedCron)
	}

	empty := Decode("   ", true)
	if empty.AdvancedCron != "" || empty.IsAdvanced() {
		t.Fatalf("empty input must not carry an advanced cron: %+v", empty)
	}
	if !empty.Enabled {
		t.Fatal("enabled must be preserved for empty input")
	}
}

func TestStrictMonthDays(t *testing.T) {
	t.Parallel()
	c := Codec{StrictMonthDays: true}
	got := c.Decode("0 6 29 * *", true)
	if got.AdvancedCron != "0 6 29 * *" {
		t.Fatalf("strict codec should fall back for day 29, got %+v", got)
	}
	ok := c.Decode("0 6 28 * *", true)
	if ok.IsAdvanced() || ok.Frequency != Monthly {
		t.Fatalf("strict codec should accept day 28, got %+v", ok)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		draft Draft
		want  string
		ok    bool
	}{
		{name: "daily", draft: Draft{Frequency: Daily, Time: "03:30"}, want: "30 3 * * *", ok: true},
		{name: "midnight", draft: Draft{Frequency: Daily, Time: "00:00"}, want: "0 0 * * *", ok: true},
		{name: "weekly sorted", draft: Draft{Frequency: Weekly, Time: "09:00", DaysOfWeek: []int{5, 1, 3}}, want: "0 9 * * 1,3,5", ok: true},
		{name: "weekly duplicates", draft: Draft{Frequency: Weekly, Time: "09:00", DaysOfWeek: []int{1, 1, 0}}, want: "0 9 * * 0,1", ok: true},
		{name: "monthly", draft: Draft{Frequency: Monthly, Time: "14:05", DaysOfMonth: []int{15, 1}}, want: "5 14 1,15 * *", ok: true},
		{name: "inactive list ignored", draft: Draft{Frequency: Daily, Time: "08:15", DaysOfWeek: []int{99}}, want: "15 8 * * *", ok: true},
		{name: "weekly empty", draft: Draft{Frequency: Weekly, Time: "09:00", DaysOfWeek: []int{}}},
		{name: "weekly out of range", draft: Draft{Frequency: Weekly, Time: "09:00", DaysOfWeek: []int{7}}},
		{name: "monthly beyond 28", draft: Draft{Frequency: Monthly, Time: "09:00", DaysOfMonth: []int{29}}},
		{name: "monthly zero", draft: Draft{Frequency: Monthly, Time: "09:00", DaysOfMonth: []int{0}}},
		{name: "monthly empty", draft: Draft{Frequency: Monthly, Time: "09:00"}},
		{name: "bad time", draft: Draft{Frequency: Daily, Time: "25:00"}},
		{name: "bad minute", draft: Draft{Frequency: Daily, Time: "10:7"}},
		{name: "empty time", draft: Draft{Frequency: Daily}},
		{name: "unknown frequency", draft: Draft{Frequency: "hourly", Time: "10:00"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Encode(tt.draft)
			if ok != tt.ok {
				t.Fatalf("Encode ok = %v, want %v (got %q)", ok, tt.ok, got)
			}
			if got != tt.want {
				t.Fatalf("Encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeIgnoresAdvancedCron(t *testing.T) {
	t.Parallel()
	d := FallbackDraft("*/5 * * * *", true)
	got, ok := Encode(d)
	if !ok || got != "0 3 * * *" {
		t.Fatalf("Encode(fallback) = %q, %v", got, ok)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	crons := []string{
		"0 0 * * *",
		"59 23 * * *",
		"0 9 * * 0,1,2,3,4,5,6",
		"15 6 * * 2",
		"45 18 1,2,28 * *",
		"0 12 14 * *",
	}
	for _, cron := range crons {
		for _, enabled := range []bool{true, false} {
			d := Decode(cron, enabled)
			if d.IsAdvanced() {
				t.Fatalf("Decode(%q) unexpectedly fell back", cron)
			}
			enc, ok := Encode(d)
			if !ok {
				t.Fatalf("Encode(Decode(%q)) failed", cron)
			}
			if enc != cron {
				t.Fatalf("Encode(Decode(%q)) = %q", cron, enc)
			}
			again := Decode(enc, enabled)
			if !reflect.DeepEqual(again, d.Normalized()) {
				t.Fatalf("round trip mismatch for %q: %+v vs %+v", cron, again, d)
			}
		}
	}
}

func TestDecodeStabilizes(t *testing.T) {
	t.Parallel()
	crons := []string{
		"0 9 * * 7,1,1",
		"30 4 31,2,2 * *",
		"07 05 * * *",
		"0 0 * * 0,7",
	}
	for _, cron := range crons {
		first := Decode(cron, true)
		enc, ok := Encode(first)
		if !ok {
			t.Fatalf("Encode(Decode(%q)) failed: %+v", cron, first)
		}
		second := Decode(enc, true)
		enc2, _ := Encode(second)
		if enc2 != enc || !reflect.DeepEqual(first, second) {
			t.Fatalf("%q did not stabilize: %q -> %q", cron, enc, enc2)
		}
	}
}

func TestParseTime(t *testing.T) {
	t.Parallel()
	h, m, err := ParseTime("23:15")
	if err != nil {
		t.Fatalf("ParseTime error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}
	for _, bad := range []string{"24:00", "12:60", "1200", "12:5", ":30", "a1:00", "123:00", ""} {
		if _, _, err := ParseTime(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseFrequency(t *testing.T) {
	t.Parallel()
	f, err := ParseFrequency(" Weekly ")
	if err != nil || f != Weekly {
		t.Fatalf("ParseFrequency = %q, %v", f, err)
	}
	if _, err := ParseFrequency("hourly"); err == nil {
		t.Fatal("expected error for hourly")
	}
}
