package schedule

import (
	"strconv"
	"strings"
)

// Codec converts between drafts and 5-field cron strings
// ("minute hour day-of-month month day-of-week").
//
// The zero value clamps a persisted day-of-month of 29..31 to 28 when decoding,
// matching what the editor has always written. StrictMonthDays instead treats
// those values as not representable so the original cron is kept verbatim.
type Codec struct {
	StrictMonthDays bool
}

var defaultCodec Codec

// Decode parses cron with the default (clamping) codec.
func Decode(cron string, enabled bool) Draft { return defaultCodec.Decode(cron, enabled) }

// Encode derives a cron string from d. The bool is false when no cron can be derived.
func Encode(d Draft) (string, bool) { return defaultCodec.Encode(d) }

// Decode parses cron into a draft. It never fails: anything the simplified model
// cannot represent yields FallbackDraft with AdvancedCron set. enabled is carried
// through unchanged.
func (c Codec) Decode(cron string, enabled bool) Draft {
	d, ok := c.decode(cron)
	if !ok {
		return FallbackDraft(cron, enabled)
	}
	d.Enabled = enabled
	return d
}

func (c Codec) decode(cron string) (Draft, bool) {
	fields := strings.Fields(cron)
	if len(fields) != 5 {
		return Draft{}, false
	}
	minF, hourF, domF, monF, dowF := fields[0], fields[1], fields[2], fields[3], fields[4]
	if monF != "*" {
		return Draft{}, false
	}
	minute, ok := parseDigits(minF)
	if !ok || minute > 59 {
		return Draft{}, false
	}
	hour, ok := parseDigits(hourF)
	if !ok || hour > 23 {
		return Draft{}, false
	}

	d := Draft{
		Time:        FormatTime(hour, minute),
		DaysOfWeek:  []int{1},
		DaysOfMonth: []int{1},
	}
	switch {
	case domF == "*" && dowF == "*":
		d.Frequency = Daily
	case domF == "*":
		days, ok := parseList(dowF, 0, 7)
		if !ok {
			return Draft{}, false
		}
		for i, v := range days {
			if v == 7 {
				days[i] = 0
			}
		}
		d.Frequency = Weekly
		d.DaysOfWeek = sortedSet(days)
	case dowF == "*":
		days, ok := parseList(domF, 1, 31)
		if !ok {
			return Draft{}, false
		}
		for i, v := range days {
			if v > MaxDraftMonthDay {
				if c.StrictMonthDays {
					return Draft{}, false
				}
				days[i] = MaxDraftMonthDay
			}
		}
		d.Frequency = Monthly
		d.DaysOfMonth = sortedSet(days)
	default:
		return Draft{}, false
	}
	return d, true
}

// Encode derives the cron string for d. It returns false when d.Time is not a valid
// HH:MM, the active day selection is empty or out of range, or the frequency is unknown.
// AdvancedCron is ignored: encoding always reflects the simplified fields.
func (c Codec) Encode(d Draft) (string, bool) {
	hour, minute, err := ParseTime(d.Time)
	if err != nil {
		return "", false
	}
	prefix := strconv.Itoa(minute) + " " + strconv.Itoa(hour)

	switch d.Frequency {
	case Daily:
		return prefix + " * * *", true
	case Weekly:
		days, ok := checkedSet(d.DaysOfWeek, 0, 6)
		if !ok {
			return "", false
		}
		return prefix + " * * " + joinInts(days), true
	case Monthly:
		days, ok := checkedSet(d.DaysOfMonth, 1, MaxDraftMonthDay)
		if !ok {
			return "", false
		}
		return prefix + " " + joinInts(days) + " * *", true
	default:
		return "", false
	}
}

func checkedSet(vals []int, lo, hi int) ([]int, bool) {
	if len(vals) == 0 {
		return nil, false
	}
	for _, v := range vals {
		if v < lo || v > hi {
			return nil, false
		}
	}
	return sortedSet(vals), true
}

func parseList(field string, lo, hi int) ([]int, bool) {
	parts := strings.Split(field, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, ok := parseDigits(p)
		if !ok || v < lo || v > hi {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}
