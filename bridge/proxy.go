// bridge/proxy.go
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"deepchat/tools"
	"deepchat/types"
)

// remoteTool adapts one tool discovered on a tool server to the registry's
// executor contract. Execution forwards to the owning client under the
// tool's own name.
type remoteTool struct {
	client      *Client
	name        string
	description string
	schema      json.RawMessage
}

func (t *remoteTool) Name() string { return t.name }

func (t *remoteTool) Definition() types.ToolDefinition {
	description := t.description
	if description == "" {
		description = fmt.Sprintf("Tool %s from server %s", t.name, t.client.Name())
	}
	schema := t.schema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}
	return types.NewFunctionDef(t.name, description, schema)
}

func (t *remoteTool) Execute(ctx context.Context, args string) (string, error) {
	arguments := make(map[string]interface{})
	if args != "" {
		if err := json.Unmarshal([]byte(args), &arguments); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}

	result, err := t.client.CallTool(ctx, t.name, arguments)
	if err != nil {
		return "", err
	}
	return flattenContent(result), nil
}

// flattenContent renders a tool result as plain text for the registry's
// uniform return type.
func flattenContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, item := range result.Content {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		default:
			if data, err := json.Marshal(content); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// RegisterTools discovers the server's tools and registers a proxy for each.
// Returns how many tools were added.
func RegisterTools(ctx context.Context, registry *tools.Registry, client *Client) (int, error) {
	remote, err := client.ListTools(ctx)
	if err != nil {
		return 0, err
	}

	for _, tool := range remote {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			schema = nil
		}
		registry.Register(&remoteTool{
			client:      client,
			name:        tool.Name,
			description: tool.Description,
			schema:      schema,
		})
	}
	return len(remote), nil
}
