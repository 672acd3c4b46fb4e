// tools/time.go
package tools

import (
	"context"
	"encoding/json"
	"time"

	"deepchat/types"
)

// TimeTool reports the current time.
type TimeTool struct{}

func (t *TimeTool) Name() string { return "current_time" }

func (t *TimeTool) Definition() types.ToolDefinition {
	return types.NewFunctionDef("current_time", "Get the current date and time", json.RawMessage(`{
		"type": "object",
		"properties": {
			"format": {"type": "string", "description": "Go reference time layout, RFC3339 by default"}
		}
	}`))
}

func (t *TimeTool) Execute(ctx context.Context, args string) (string, error) {
	params, err := parseArgs(args)
	if err != nil {
		return "", err
	}
	format := time.RFC3339
	if v, ok := params["format"].(string); ok && v != "" {
		format = v
	}
	return time.Now().Format(format), nil
}
