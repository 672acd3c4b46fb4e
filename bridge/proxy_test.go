// bridge/proxy_test.go
package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepchat/tools"
)

func TestRemoteToolDefinitionFallbacks(t *testing.T) {
	client := &Client{name: "srv"}
	tool := &remoteTool{client: client, name: "mystery"}

	def := tool.Definition()
	assert.Equal(t, "function", def.Type)
	assert.Equal(t, "mystery", def.Function.Name)
	assert.Contains(t, def.Function.Description, "srv", "description names the owning server")
	assert.JSONEq(t, `{"type":"object"}`, string(def.Function.Parameters))
}

func TestRemoteToolDefinitionPassesThrough(t *testing.T) {
	tool := &remoteTool{
		client:      &Client{name: "srv"},
		name:        "echo",
		description: "repeats input",
		schema:      json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
	}

	def := tool.Definition()
	assert.Equal(t, "repeats input", def.Function.Description)
	assert.JSONEq(t, `{"type":"object","properties":{"text":{"type":"string"}}}`, string(def.Function.Parameters))
}

func TestFlattenContentJoinsTextBlocks(t *testing.T) {
	result := &mcp.CallToolResult{Content: []interface{}{
		mcp.TextContent{Type: "text", Text: "first"},
		mcp.TextContent{Type: "text", Text: "second"},
	}}
	assert.Equal(t, "first\nsecond", flattenContent(result))
}

func TestFlattenContentMarshalsUnknownBlocks(t *testing.T) {
	result := &mcp.CallToolResult{Content: []interface{}{
		map[string]interface{}{"type": "image", "data": "..."},
	}}
	assert.Contains(t, flattenContent(result), `"image"`)
}

func TestRegisterToolsProxiesCatalogue(t *testing.T) {
	fs := newFakeServer(t)
	registry := tools.NewRegistry()

	type registerResult struct {
		count int
		err   error
	}
	resc := make(chan registerResult, 1)
	go func() {
		count, err := RegisterTools(context.Background(), registry, fs.client)
		resc <- registerResult{count, err}
	}()

	req := fs.next(t)
	assert.Equal(t, "tools/list", req.Method)
	fs.respond(t, req.ID, `{"tools":[{"name":"echo","description":"repeats input","inputSchema":{"type":"object"}},{"name":"lookup","description":"","inputSchema":{"type":"object"}}]}`)

	out := <-resc
	require.NoError(t, out.err)
	assert.Equal(t, 2, out.count)

	defs := registry.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "echo", defs[0].Function.Name)

	// A registered proxy forwards execution to the server.
	execResult := make(chan string, 1)
	go func() {
		result, err := registry.Execute(context.Background(), "echo", `{"text":"hi"}`)
		require.NoError(t, err)
		execResult <- result
	}()
	req = fs.next(t)
	assert.Equal(t, "tools/call", req.Method)
	fs.respond(t, req.ID, `{"content":[{"type":"text","text":"hi"}]}`)
	assert.Equal(t, "hi", <-execResult)
}

func TestRemoteToolRejectsMalformedArguments(t *testing.T) {
	tool := &remoteTool{client: &Client{name: "srv"}, name: "echo"}

	_, err := tool.Execute(context.Background(), `{"broken"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments")
}
