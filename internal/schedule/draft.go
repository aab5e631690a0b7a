package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

// ParseFrequency accepts the three frequency names case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly:
		return f, nil
	default:
		return "", fmt.Errorf("invalid frequency %q (use daily, weekly or monthly)", s)
	}
}

const (
	// MaxDraftMonthDay is the last day of month a draft may select; it exists in every month.
	MaxDraftMonthDay = 28

	fallbackTime = "03:00"
)

// Draft is the editable recurrence shape.
//
// Only one of DaysOfWeek (weekly) or DaysOfMonth (monthly) is active at a time;
// the other keeps its contents so switching frequency back restores the selection.
// AdvancedCron is empty unless the persisted cron could not be represented.
type Draft struct {
	Enabled      bool      `json:"enabled"`
	Frequency    Frequency `json:"frequency"`
	Time         string    `json:"time"`
	DaysOfWeek   []int     `json:"daysOfWeek"`
	DaysOfMonth  []int     `json:"daysOfMonth"`
	AdvancedCron string    `json:"advancedCron,omitempty"`
}

// FallbackDraft is what Decode returns for a cron it cannot represent.
func FallbackDraft(cron string, enabled bool) Draft {
	return Draft{
		Enabled:      enabled,
		Frequency:    Daily,
		Time:         fallbackTime,
		DaysOfWeek:   []int{1},
		DaysOfMonth:  []int{1},
		AdvancedCron: strings.TrimSpace(cron),
	}
}

// IsAdvanced reports whether the draft carries a cron the simplified model can't express.
func (d Draft) IsAdvanced() bool { return d.AdvancedCron != "" }

// Clone returns a copy that shares no slices with d.
func (d Draft) Clone() Draft {
	d.DaysOfWeek = slices.Clone(d.DaysOfWeek)
	d.DaysOfMonth = slices.Clone(d.DaysOfMonth)
	return d
}

// Normalized returns a copy with both day lists as sorted unique sets.
func (d Draft) Normalized() Draft {
	d.DaysOfWeek = sortedSet(d.DaysOfWeek)
	d.DaysOfMonth = sortedSet(d.DaysOfMonth)
	return d
}

// ParseTime parses a zero-padded or bare 24-hour HH:MM value.
func ParseTime(hhmm string) (hour, minute int, err error) {
	s := strings.TrimSpace(hhmm)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || hs == "" || len(ms) != 2 || len(hs) > 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", hhmm)
	}
	hour, ok = parseDigits(hs)
	if !ok || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", hhmm)
	}
	minute, ok = parseDigits(ms)
	if !ok || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", hhmm)
	}
	return hour, minute, nil
}

// FormatTime renders hour and minute as zero-padded HH:MM.
func FormatTime(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// parseDigits accepts plain decimal digits only (no sign, no spaces).
func parseDigits(s string) (int, bool) {
	if s == "" || len(s) > 4 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func sortedSet(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
