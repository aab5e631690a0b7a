package schedule

import (
	"strconv"
	"strings"
	"time"
)

// Describe renders a one-line summary for job cards and CLI tables.
func Describe(d Draft) string {
	if d.IsAdvanced() {
		return "Custom: " + d.AdvancedCron
	}
	h, m, err := ParseTime(d.Time)
	if err != nil {
		return "Invalid time " + strconv.Quote(d.Time)
	}
	at := FormatTime(h, m)

	switch d.Frequency {
	case Daily:
		return "Daily at " + at
	case Weekly:
		days := sortedSet(d.DaysOfWeek)
		if len(days) == 0 {
			return "Weekly (no days selected)"
		}
		names := make([]string, 0, len(days))
		for _, v := range days {
			if v < 0 || v > 6 {
				names = append(names, strconv.Itoa(v))
				continue
			}
			names = append(names, time.Weekday(v).String()[:3])
		}
		return "Weekly on " + strings.Join(names, ", ") + " at " + at
	case Monthly:
		days := sortedSet(d.DaysOfMonth)
		if len(days) == 0 {
			return "Monthly (no days selected)"
		}
		label := "day "
		if len(days) > 1 {
			label = "days "
		}
		return "Monthly on " + label + strings.ReplaceAll(joinInts(days), ",", ", ") + " at " + at
	default:
		return "Unknown frequency " + strconv.Quote(string(d.Frequency))
	}
}
