package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type ProbeResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// TestIntegration asks the Integrations service to probe connectivity to name
// (e.g. "plex", "radarr"). body may override stored credentials.
func (c *Client) TestIntegration(ctx context.Context, name string, body map[string]any) (ProbeResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ProbeResult{}, fmt.Errorf("integration name required")
	}
	if body == nil {
		body = map[string]any{}
	}
	var out ProbeResult
	if err := c.do(ctx, http.MethodPost, "/api/integrations/test/"+url.PathEscape(name), nil, body, &out); err != nil {
		return ProbeResult{}, err
	}
	return out, nil
}
