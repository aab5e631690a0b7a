package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// standardParser accepts the same 5 fields the Jobs service stores; descriptors
// such as "@daily" are accepted too since the backend evaluates them.
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCron reports whether expr is a cron the backend scheduler can evaluate.
// It is wider than Decode: step, range and named values are valid here even though
// the simplified draft can't express them.
func ValidateCron(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("cron expression required")
	}
	if _, err := parseCron(expr); err != nil {
		return fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return nil
}

func parseCron(expr string) (cron.Schedule, error) {
	return standardParser.Parse(sundayAsZero(strings.TrimSpace(expr)))
}

// sundayAsZero rewrites day-of-week 7 (Sunday, as Decode reads it) to 0, which is
// the only spelling robfig/cron accepts. "5-7" becomes "5-6,0".
func sundayAsZero(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	parts := strings.Split(fields[4], ",")
	out := make([]string, 0, len(parts)+1)
	for _, p := range parts {
		rng, step, hasStep := strings.Cut(p, "/")
		lo, hi, isRange := strings.Cut(rng, "-")
		switch {
		case rng == "7" && !hasStep:
			out = append(out, "0")
		case isRange && hi == "7":
			from, err := strconv.Atoi(lo)
			if err != nil || from < 0 || from > 7 {
				out = append(out, p)
				continue
			}
			every := 1
			if hasStep {
				if every, err = strconv.Atoi(step); err != nil || every <= 0 {
					out = append(out, p)
					continue
				}
			}
			if from <= 6 {
				r := strconv.Itoa(from) + "-6"
				if hasStep {
					r += "/" + step
				}
				out = append(out, r)
			}
			if (7-from)%every == 0 {
				out = append(out, "0")
			}
		default:
			out = append(out, p)
		}
	}
	fields[4] = strings.Join(out, ",")
	return strings.Join(fields, " ")
}

// NextCronOccurrences projects an arbitrary cron expression, used to preview drafts
// that only carry AdvancedCron. Times are computed in from's location.
func NextCronOccurrences(expr string, count int, from time.Time) ([]time.Time, error) {
	if err := ValidateCron(expr); err != nil {
		return nil, err
	}
	sched, _ := parseCron(expr)
	out := make([]time.Time, 0, max(count, 0))
	t := from
	for len(out) < count {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}

// Preview returns the next count run times for d, whichever representation it uses.
func Preview(d Draft, count int, from time.Time) []time.Time {
	if d.IsAdvanced() {
		out, err := NextCronOccurrences(d.AdvancedCron, count, from)
		if err != nil {
			return nil
		}
		return out
	}
	return Occurrences(d, count, from)
}
