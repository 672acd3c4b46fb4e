// tools/http.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"deepchat/types"
)

const defaultMaxBytes = 64 * 1024

// HTTPGetTool fetches a URL and returns the status plus a capped body.
type HTTPGetTool struct {
	client *http.Client
}

// NewHTTPGetTool creates an HTTP tool with a bounded request timeout.
func NewHTTPGetTool() *HTTPGetTool {
	return &HTTPGetTool{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *HTTPGetTool) Name() string { return "http_get" }

func (t *HTTPGetTool) Definition() types.ToolDefinition {
	return types.NewFunctionDef("http_get", "Fetch a URL with an HTTP GET request", json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "description": "URL to request"},
			"max_bytes": {"type": "number", "description": "Maximum number of response bytes to return"}
		},
		"required": ["url"]
	}`))
}

func (t *HTTPGetTool) Execute(ctx context.Context, args string) (string, error) {
	params, err := parseArgs(args)
	if err != nil {
		return "", err
	}
	url, err := stringParam(params, "url")
	if err != nil {
		return "", err
	}
	maxBytes := int64(defaultMaxBytes)
	if v, ok := params["max_bytes"].(float64); ok && v > 0 {
		maxBytes = int64(v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("status: %d\n%s", resp.StatusCode, body), nil
}
