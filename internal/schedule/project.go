package schedule

import (
	"iter"
	"slices"
	"time"
)

// ScanDays bounds how far NextOccurrences walks forward before giving up.
const ScanDays = 365

// NextOccurrences yields up to count run times matching d, strictly after from,
// in from's location. The scan walks one calendar day at a time and stops after
// ScanDays days, so a sparse selection may yield fewer than count values.
// An unparseable d.Time yields nothing.
//
// The sequence is pure and may be ranged over any number of times.
func NextOccurrences(d Draft, count int, from time.Time) iter.Seq[time.Time] {
	d = d.Clone()
	return func(yield func(time.Time) bool) {
		if count <= 0 {
			return
		}
		hour, minute, err := ParseTime(d.Time)
		if err != nil {
			return
		}
		match := dayPredicate(d)
		if match == nil {
			return
		}

		loc := from.Location()
		y, m, day := from.Date()
		start := 0
		if !time.Date(y, m, day, hour, minute, 0, 0, loc).After(from) {
			start = 1
		}

		emitted := 0
		for i := start; i < start+ScanDays; i++ {
			at := time.Date(y, m, day+i, hour, minute, 0, 0, loc)
			if !match(at) {
				continue
			}
			if !yield(at) {
				return
			}
			emitted++
			if emitted >= count {
				return
			}
		}
	}
}

// Occurrences collects NextOccurrences into a slice.
func Occurrences(d Draft, count int, from time.Time) []time.Time {
	return slices.Collect(NextOccurrences(d, count, from))
}

func dayPredicate(d Draft) func(time.Time) bool {
	switch d.Frequency {
	case Daily:
		return func(time.Time) bool { return true }
	case Weekly:
		return func(t time.Time) bool { return slices.Contains(d.DaysOfWeek, int(t.Weekday())) }
	case Monthly:
		return func(t time.Time) bool { return slices.Contains(d.DaysOfMonth, t.Day()) }
	default:
		return nil
	}
}
