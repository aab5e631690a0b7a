package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Settings is the nested key/value document served by the Settings service.
type Settings map[string]any

// Lookup resolves a dotted path ("plex.baseUrl").
func (s Settings) Lookup(path string) (any, bool) {
	var cur any = map[string]any(s)
	for _, key := range splitPath(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath writes v at a dotted path, creating intermediate maps.
// A non-map value in the way is replaced.
func SetPath(m map[string]any, path string, v any) error {
	keys := splitPath(path)
	if len(keys) == 0 {
		return fmt.Errorf("settings path required")
	}
	cur := m
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = v
	return nil
}

func splitPath(path string) []string {
	parts := strings.Split(strings.TrimSpace(path), ".")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Client) GetSettings(ctx context.Context) (Settings, error) {
	var out struct {
		Settings Settings `json:"settings"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Settings == nil {
		out.Settings = Settings{}
	}
	return out.Settings, nil
}

// PutSettings merges patch into the stored settings and returns the result.
func (c *Client) PutSettings(ctx context.Context, patch map[string]any) (Settings, error) {
	var out struct {
		Settings Settings `json:"settings"`
	}
	in := map[string]any{"settings": patch}
	if err := c.do(ctx, http.MethodPut, "/api/settings", nil, in, &out); err != nil {
		return nil, err
	}
	return out.Settings, nil
}
