package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"go.yaml.in/yaml/v3"
)

// render writes v as JSON or YAML, or calls fill for the default table output.
func (e *env) render(v any, fill func(t *table)) error {
	switch e.output {
	case "json":
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// Round-trip through JSON so YAML keys match the API's json tags.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(e.out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		t := newTable(e.out)
		fill(t)
		t.tw.Render()
		return nil
	}
}

// table is a borderless, left-aligned tablewriter in the style of kubectl output.
type table struct {
	tw *tablewriter.Table
}

func newTable(w io.Writer) *table {
	tw := tablewriter.NewWriter(w)
	tw.SetBorder(false)
	tw.SetAutoWrapText(false)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeaderLine(false)
	tw.SetCenterSeparator("")
	tw.SetColumnSeparator("")
	tw.SetRowSeparator("")
	tw.SetTablePadding("  ")
	tw.SetNoWhiteSpace(true)
	return &table{tw: tw}
}

func (t *table) header(cols ...string) { t.tw.SetHeader(cols) }

func (t *table) row(cols ...any) {
	r := make([]string, len(cols))
	for i, c := range cols {
		r[i] = fmt.Sprint(c)
	}
	t.tw.Append(r)
}

// ago renders t relative to now ("3 hours ago", "2 days from now").
func ago(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.Time(*t)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
