// chat/orchestrator_test.go
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepchat/llm"
	"deepchat/tools"
	"deepchat/types"
)

// fakeClient replays scripted responses. Each CompleteWithTools pops one
// response; Complete pops one string.
type fakeClient struct {
	model         string
	toolResponses []*types.CompletionResponse
	toolErr       error
	plainReplies  []string
	plainErr      error

	toolRequests  [][]types.Message
	plainRequests [][]types.Message
}

func (f *fakeClient) ModelName() string { return f.model }

func (f *fakeClient) Complete(_ context.Context, messages []types.Message, _ float64, _ bool) (string, error) {
	f.plainRequests = append(f.plainRequests, messages)
	if f.plainErr != nil {
		return "", f.plainErr
	}
	if len(f.plainReplies) == 0 {
		return "", fmt.Errorf("no scripted plain reply")
	}
	reply := f.plainReplies[0]
	f.plainReplies = f.plainReplies[1:]
	return reply, nil
}

func (f *fakeClient) CompleteWithTools(_ context.Context, messages []types.Message, _ []types.ToolDefinition, _ float64) (*types.CompletionResponse, error) {
	f.toolRequests = append(f.toolRequests, messages)
	if f.toolErr != nil {
		return nil, f.toolErr
	}
	if len(f.toolResponses) == 0 {
		return nil, fmt.Errorf("no scripted tool response")
	}
	resp := f.toolResponses[0]
	f.toolResponses = f.toolResponses[1:]
	return resp, nil
}

func (f *fakeClient) ListModels(context.Context) ([]string, error) { return []string{f.model}, nil }

func (f *fakeClient) WithModel(model string) llm.ChatClient {
	derived := *f
	derived.model = model
	return &derived
}

type fakeStore struct {
	saved map[string][]types.Message
}

func newFakeStore() *fakeStore { return &fakeStore{saved: make(map[string][]types.Message)} }

func (s *fakeStore) Load(id string) ([]types.Message, error) { return s.saved[id], nil }

func (s *fakeStore) Save(id string, messages []types.Message) error {
	out := make([]types.Message, len(messages))
	copy(out, messages)
	s.saved[id] = out
	return nil
}

// echoTool records its invocation and returns a fixed string.
type echoTool struct {
	calls []string
	fail  bool
}

func (e *echoTool) Name() string { return "echo" }

func (e *echoTool) Definition() types.ToolDefinition {
	return types.NewFunctionDef("echo", "repeats input", json.RawMessage(`{"type":"object"}`))
}

func (e *echoTool) Execute(_ context.Context, args string) (string, error) {
	e.calls = append(e.calls, args)
	if e.fail {
		return "", fmt.Errorf("echo broke")
	}
	return "echoed: " + args, nil
}

func toolCallResponse(calls ...types.ToolCall) *types.CompletionResponse {
	return &types.CompletionResponse{
		Choices: []types.Choice{{Message: types.Message{Role: "assistant", ToolCalls: calls}}},
	}
}

func plainResponse(content string) *types.CompletionResponse {
	return &types.CompletionResponse{
		Choices: []types.Choice{{Message: types.Message{Role: "assistant", Content: content}}},
	}
}

func TestPlainReplyWithoutTools(t *testing.T) {
	client := &fakeClient{model: "m", plainReplies: []string{"hello"}}
	orch := NewOrchestrator(client, tools.NewRegistry(), nil, zerolog.Nop())

	result, err := orch.ProcessTurn(context.Background(), "hi", false)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Content)
	assert.Zero(t, result.ToolCalls)

	history := orch.History()
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Len(t, client.toolRequests, 0, "empty registry means no tool catalogue")
}

func TestAssistantAnswersWithoutCallingTools(t *testing.T) {
	client := &fakeClient{model: "m", toolResponses: []*types.CompletionResponse{plainResponse("direct answer")}}
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})
	orch := NewOrchestrator(client, registry, nil, zerolog.Nop())

	result, err := orch.ProcessTurn(context.Background(), "hi", false)
	require.NoError(t, err)
	assert.Equal(t, "direct answer", result.Content)
	assert.Len(t, client.toolRequests, 1)
	assert.Len(t, client.plainRequests, 0)
	assert.Len(t, orch.History(), 2)
}

func TestSingleToolRound(t *testing.T) {
	client := &fakeClient{
		model: "m",
		toolResponses: []*types.CompletionResponse{toolCallResponse(types.ToolCall{
			ID:       "call-1",
			Type:     "function",
			Function: types.FunctionCall{Name: "echo", Arguments: `{"text":"hi"}`},
		})},
		plainReplies: []string{"done"},
	}
	registry := tools.NewRegistry()
	tool := &echoTool{}
	registry.Register(tool)
	store := newFakeStore()
	orch := NewOrchestrator(client, registry, store, zerolog.Nop())
	orch.SetSession("s-1", nil)

	var observedCalls, observedResults int
	orch.OnToolCall = func(types.ToolCall) { observedCalls++ }
	orch.OnToolResult = func(_ types.ToolCall, result string, err error) {
		observedResults++
		assert.NoError(t, err)
		assert.Equal(t, `echoed: {"text":"hi"}`, result)
	}

	result, err := orch.ProcessTurn(context.Background(), "say hi", false)
	require.NoError(t, err)
	assert.Equal(t, "done", result.Content)
	assert.Equal(t, 1, result.ToolCalls)
	assert.Equal(t, []string{`{"text":"hi"}`}, tool.calls)
	assert.Equal(t, 1, observedCalls)
	assert.Equal(t, 1, observedResults)

	// user, assistant-with-calls, tool, final assistant
	history := orch.History()
	require.Len(t, history, 4)
	assert.Equal(t, "assistant", history[1].Role)
	require.Len(t, history[1].ToolCalls, 1)
	assert.Equal(t, "tool", history[2].Role)
	assert.Equal(t, "call-1", history[2].ToolCallID, "tool message references the call that produced it")
	assert.Equal(t, "assistant", history[3].Role)

	// The follow-up completion sees the tool output but no catalogue.
	require.Len(t, client.plainRequests, 1)
	assert.Len(t, client.plainRequests[0], 3)

	assert.Equal(t, history, store.saved["s-1"], "turn persisted after completion")
}

func TestUnknownToolBecomesErrorMessage(t *testing.T) {
	client := &fakeClient{
		model: "m",
		toolResponses: []*types.CompletionResponse{toolCallResponse(types.ToolCall{
			ID:       "call-1",
			Type:     "function",
			Function: types.FunctionCall{Name: "missing", Arguments: `{}`},
		})},
		plainReplies: []string{"sorry about that"},
	}
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})
	orch := NewOrchestrator(client, registry, nil, zerolog.Nop())

	result, err := orch.ProcessTurn(context.Background(), "use missing", false)
	require.NoError(t, err, "a failed tool call does not fail the turn")
	assert.Equal(t, "sorry about that", result.Content)

	history := orch.History()
	require.Len(t, history, 4)
	assert.Equal(t, "tool", history[2].Role)
	assert.Contains(t, history[2].Content, "Error:")
	assert.Contains(t, history[2].Content, "missing")
}

func TestToolExecutionFailureContinuesTurn(t *testing.T) {
	client := &fakeClient{
		model: "m",
		toolResponses: []*types.CompletionResponse{toolCallResponse(types.ToolCall{
			ID:       "call-1",
			Type:     "function",
			Function: types.FunctionCall{Name: "echo", Arguments: `{}`},
		})},
		plainReplies: []string{"recovered"},
	}
	registry := tools.NewRegistry()
	registry.Register(&echoTool{fail: true})
	orch := NewOrchestrator(client, registry, nil, zerolog.Nop())

	var resultErr error
	orch.OnToolResult = func(_ types.ToolCall, _ string, err error) { resultErr = err }

	result, err := orch.ProcessTurn(context.Background(), "go", false)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Content)
	require.Error(t, resultErr)
	assert.True(t, errors.Is(resultErr, types.ErrToolExecution))
	assert.Contains(t, orch.History()[2].Content, "echo broke")
}

// strictTool advertises a schema with a required typed field, so malformed
// calls must be stopped before execution.
type strictTool struct {
	executions int
}

func (s *strictTool) Name() string { return "lookup" }

func (s *strictTool) Definition() types.ToolDefinition {
	return types.NewFunctionDef("lookup", "looks things up", json.RawMessage(`{
		"type": "object",
		"properties": {"text": {"type": "string"}},
		"required": ["text"]
	}`))
}

func (s *strictTool) Execute(context.Context, string) (string, error) {
	s.executions++
	return "found", nil
}

func TestInvalidToolCallIsRejectedBeforeExecution(t *testing.T) {
	client := &fakeClient{
		model: "m",
		toolResponses: []*types.CompletionResponse{toolCallResponse(types.ToolCall{
			ID:       "call-1",
			Type:     "function",
			Function: types.FunctionCall{Name: "lookup", Arguments: `{"text":7}`},
		})},
		plainReplies: []string{"let me rephrase"},
	}
	registry := tools.NewRegistry()
	tool := &strictTool{}
	registry.Register(tool)
	orch := NewOrchestrator(client, registry, nil, zerolog.Nop())

	result, err := orch.ProcessTurn(context.Background(), "look up 7", false)
	require.NoError(t, err, "a rejected tool call does not fail the turn")
	assert.Equal(t, "let me rephrase", result.Content)
	assert.Zero(t, tool.executions, "validation failure must not reach the executor")

	history := orch.History()
	require.Len(t, history, 4)
	assert.Equal(t, "tool", history[2].Role)
	assert.Contains(t, history[2].Content, "Error:")
	assert.Contains(t, history[2].Content, "expected string")
}

func TestMissingRequiredArgumentIsRejected(t *testing.T) {
	client := &fakeClient{
		model: "m",
		toolResponses: []*types.CompletionResponse{toolCallResponse(types.ToolCall{
			ID:       "call-1",
			Type:     "function",
			Function: types.FunctionCall{Name: "lookup", Arguments: `{}`},
		})},
		plainReplies: []string{"need more detail"},
	}
	registry := tools.NewRegistry()
	tool := &strictTool{}
	registry.Register(tool)
	orch := NewOrchestrator(client, registry, nil, zerolog.Nop())

	_, err := orch.ProcessTurn(context.Background(), "look up", false)
	require.NoError(t, err)
	assert.Zero(t, tool.executions)
	assert.Contains(t, orch.History()[2].Content, "missing required field text")
}

func TestProviderFailureLeavesHistoryUntouched(t *testing.T) {
	client := &fakeClient{model: "m", toolErr: &types.APIError{Status: 500, Body: "boom"}}
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})
	orch := NewOrchestrator(client, registry, nil, zerolog.Nop())

	_, err := orch.ProcessTurn(context.Background(), "hi", false)
	require.Error(t, err)
	assert.Empty(t, orch.History(), "failed turn must not leave a dangling user message")
}

func TestFollowUpFailureKeepsToolRound(t *testing.T) {
	client := &fakeClient{
		model: "m",
		toolResponses: []*types.CompletionResponse{toolCallResponse(types.ToolCall{
			ID:       "call-1",
			Type:     "function",
			Function: types.FunctionCall{Name: "echo", Arguments: `{}`},
		})},
		plainErr: &types.APIError{Status: 503, Body: "unavailable"},
	}
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})
	store := newFakeStore()
	orch := NewOrchestrator(client, registry, store, zerolog.Nop())
	orch.SetSession("s-1", nil)

	_, err := orch.ProcessTurn(context.Background(), "go", false)
	require.Error(t, err)

	// The executed tool round is committed so the work is not lost.
	history := orch.History()
	require.Len(t, history, 3)
	assert.Equal(t, "tool", history[2].Role)
	assert.Equal(t, history, store.saved["s-1"])
}

func TestToolsDisabledSkipsCatalogue(t *testing.T) {
	client := &fakeClient{model: "m", plainReplies: []string{"plain"}}
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})
	orch := NewOrchestrator(client, registry, nil, zerolog.Nop())
	orch.SetToolsEnabled(false)

	result, err := orch.ProcessTurn(context.Background(), "hi", false)
	require.NoError(t, err)
	assert.Equal(t, "plain", result.Content)
	assert.Len(t, client.toolRequests, 0)
}

func TestSetSystemPromptReplacesExisting(t *testing.T) {
	client := &fakeClient{model: "m"}
	orch := NewOrchestrator(client, tools.NewRegistry(), nil, zerolog.Nop())

	orch.SetSystemPrompt("first")
	orch.SetSystemPrompt("second")

	history := orch.History()
	require.Len(t, history, 1)
	assert.Equal(t, "system", history[0].Role)
	assert.Equal(t, "second", history[0].Content)
}

func TestSetModelRebindsClient(t *testing.T) {
	client := &fakeClient{model: "base"}
	orch := NewOrchestrator(client, tools.NewRegistry(), nil, zerolog.Nop())

	orch.SetModel("other")
	assert.Equal(t, "other", orch.ModelName())
	assert.Equal(t, "base", client.model)
}
