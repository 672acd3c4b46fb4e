// types/types.go
package types

import "encoding/json"

// Message is one entry in a conversation, in OpenAI chat-completions shape.
// A "tool" message always carries ToolCallID referencing a prior ToolCall.ID;
// an assistant message that requests tools carries ToolCalls and may have
// empty content.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-issued request to invoke a named tool. Arguments is
// the raw JSON text emitted by the model, parsed only by the executor.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its argument payload.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is advertised to the model so it can produce well-formed
// tool calls.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionDef describes one callable function, with a JSON Schema for its
// parameters passed through verbatim.
type FunctionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CompletionResponse is the non-streaming chat-completions payload.
type CompletionResponse struct {
	Choices []Choice `json:"choices"`
}

// Choice is one completion candidate.
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// StreamResponse is one server-sent event fragment of a streaming completion.
type StreamResponse struct {
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice carries the incremental delta for one candidate.
type StreamChoice struct {
	Delta Delta `json:"delta"`
}

// Delta holds the content fragment, if any, of a stream event.
type Delta struct {
	Content string `json:"content,omitempty"`
}

// NewFunctionDef builds a ToolDefinition for a function-type tool.
func NewFunctionDef(name, description string, parameters json.RawMessage) ToolDefinition {
	return ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
