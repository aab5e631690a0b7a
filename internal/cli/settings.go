package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"taskdeck/internal/backend"
)

func newSettingsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change service settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [path]",
			Short: "Print all settings, or the value at a dotted path (plex.baseUrl)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				api, err := e.client()
				if err != nil {
					return err
				}
				s, err := api.GetSettings(cmd.Context())
				if err != nil {
					return err
				}
				if len(args) == 0 {
					return e.render(s, func(t *table) { settingsTable(t, "", map[string]any(s)) })
				}
				v, ok := s.Lookup(args[0])
				if !ok {
					return fmt.Errorf("setting %q not found", args[0])
				}
				return e.render(v, func(t *table) {
					if m, ok := v.(map[string]any); ok {
						settingsTable(t, args[0], m)
						return
					}
					t.row(args[0], scalar(v))
				})
			},
		},
		&cobra.Command{
			Use:   "set <path> <value>",
			Short: "Change one setting; value is parsed as JSON when possible, else taken as a string",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				api, err := e.client()
				if err != nil {
					return err
				}
				patch := map[string]any{}
				if err := backend.SetPath(patch, args[0], parseValue(args[1])); err != nil {
					return err
				}
				s, err := api.PutSettings(cmd.Context(), patch)
				if err != nil {
					return err
				}
				v, _ := s.Lookup(args[0])
				return e.render(map[string]any{"path": args[0], "value": v}, func(t *table) {
					t.row(args[0], scalar(v))
				})
			},
		},
	)
	return cmd
}

func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// settingsTable flattens nested settings into dotted-path rows.
func settingsTable(t *table, prefix string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if sub, ok := m[k].(map[string]any); ok && len(sub) > 0 {
			settingsTable(t, path, sub)
			continue
		}
		v := scalar(m[k])
		if looksSecret(k) && v != "" && v != "null" {
			v = "********"
		}
		t.row(path, v)
	}
}

func looksSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range []string{"token", "apikey", "api_key", "password", "secret"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

func newIntegrationsCommand(e *env) *cobra.Command {
	var params []string
	test := &cobra.Command{
		Use:   "test <name>",
		Short: "Probe connectivity to an integration (plex, radarr, sonarr, ...)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			for _, p := range params {
				k, v, ok := strings.Cut(p, "=")
				if !ok || strings.TrimSpace(k) == "" {
					return fmt.Errorf("--param %q: want key=value", p)
				}
				body[strings.TrimSpace(k)] = parseValue(v)
			}
			api, err := e.client()
			if err != nil {
				return err
			}
			res, err := api.TestIntegration(cmd.Context(), args[0], body)
			if err != nil {
				return err
			}
			if err := e.render(res, func(t *table) {
				status := "ok"
				if !res.OK {
					status = "failed"
				}
				t.row(args[0], status, orDash(res.Message))
			}); err != nil {
				return err
			}
			if !res.OK {
				return fmt.Errorf("integration %s: %s", args[0], orDash(res.Message))
			}
			return nil
		},
	}
	test.Flags().StringArrayVar(&params, "param", nil, "override a stored credential, key=value (repeatable)")

	cmd := &cobra.Command{
		Use:   "integrations",
		Short: "Integration checks",
	}
	cmd.AddCommand(test)
	return cmd
}
