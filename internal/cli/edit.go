package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"taskdeck/internal/editor"
	"taskdeck/internal/schedule"
)

const editHelp = `commands:
  show                 current draft and next runs
  toggle | on | off    enable or disable the schedule
  freq <daily|weekly|monthly>
  time <HH:MM>
  day <n>              toggle a weekday (0=Sun..6) or day of month (1..28)
  cron <expr>          use a raw cron expression
  save                 save now instead of waiting
  quit                 save pending changes and exit`

// lockedWriter lets editor events print while the prompt loop writes.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

func newScheduleEditCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <job>",
		Short: "Edit a schedule interactively; changes are saved automatically after a short pause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			debounce, err := e.cfg.Debounce()
			if err != nil {
				return err
			}
			loc, err := e.cfg.Location()
			if err != nil {
				return err
			}
			ed, err := e.newEditor(ctx, args[0], debounce)
			if err != nil {
				return err
			}
			defer ed.Close()

			out := &lockedWriter{w: e.out}
			events, unsubscribe := ed.Subscribe(16)
			defer unsubscribe()
			go func() {
				for ev := range events {
					switch ev.Kind {
					case editor.EventSaved:
						out.printf("saved: %s (enabled=%t)\n", ev.Intent.Cron, ev.Intent.Enabled)
					case editor.EventSaveFailed:
						out.printf("save failed: %v\n", ev.Err)
					case editor.EventInvalid:
						out.printf("not saved: %s is incomplete\n", schedule.Describe(ev.Draft))
					}
				}
			}()

			out.printf("%s\n%s\n", describeState(ed.Snapshot()), editHelp)
			sc := bufio.NewScanner(e.in)
			for {
				out.printf("> ")
				if !sc.Scan() {
					break
				}
				quit, err := editCommand(ctx, ed, sc.Text(), out, e.cfg.PreviewCount(), loc)
				if err != nil {
					out.printf("error: %v\n", err)
				}
				if quit {
					break
				}
				if ctx.Err() != nil {
					break
				}
			}
			if err := sc.Err(); err != nil {
				return err
			}
			return ed.Flush(ctx)
		},
	}
}

func describeState(st editor.State) string {
	s := fmt.Sprintf("%s: %s", st.JobID, schedule.Describe(st.Draft))
	if !st.Draft.Enabled {
		s += " (disabled)"
	}
	switch {
	case !st.Valid:
		s += " [incomplete]"
	case st.Pending:
		s += " [saving…]"
	}
	return s
}

// editCommand applies one REPL line. It reports whether the session should end.
func editCommand(ctx context.Context, ed *editor.Editor, line string, out *lockedWriter, previewCount int, loc *time.Location) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	var err error
	switch strings.ToLower(fields[0]) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		out.printf("%s\n", editHelp)
		return false, nil
	case "show":
		st := ed.Snapshot()
		out.printf("%s\n", describeState(st))
		if st.Cron != "" {
			out.printf("cron: %s\n", st.Cron)
		}
		for _, t := range ed.Preview(previewCount, time.Now().In(loc)) {
			out.printf("  %s\n", t.Format("Mon 2006-01-02 15:04"))
		}
		return false, nil
	case "toggle":
		err = ed.ToggleEnabled()
	case "on", "enable":
		err = ed.SetEnabled(true)
	case "off", "disable":
		err = ed.SetEnabled(false)
	case "freq", "frequency":
		var f schedule.Frequency
		if f, err = schedule.ParseFrequency(arg); err == nil {
			err = ed.SetFrequency(f)
		}
	case "time":
		if _, _, err = schedule.ParseTime(arg); err == nil {
			err = ed.SetTime(arg)
		}
	case "day":
		var n int
		if n, err = strconv.Atoi(arg); err == nil {
			err = ed.SelectDay(n)
		}
	case "cron":
		err = ed.UseAdvancedCron(arg)
	case "save":
		return false, ed.Flush(ctx)
	default:
		return false, fmt.Errorf("unknown command %q (try help)", fields[0])
	}
	if err != nil {
		return false, err
	}
	out.printf("%s\n", describeState(ed.Snapshot()))
	return false, nil
}
