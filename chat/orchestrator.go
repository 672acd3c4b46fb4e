// chat/orchestrator.go
package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"deepchat/llm"
	"deepchat/tools"
	"deepchat/types"
)

// SessionStore persists a conversation between turns.
type SessionStore interface {
	Load(id string) ([]types.Message, error)
	Save(id string, messages []types.Message) error
}

// TurnResult is the outcome of one completed user turn.
type TurnResult struct {
	Content   string
	Streamed  bool
	ToolCalls int
}

// Orchestrator drives one interactive conversation: it appends user input,
// queries the provider, resolves any tool calls through the registry, and
// keeps the message history consistent across the turn.
type Orchestrator struct {
	client      llm.ChatClient
	registry    *tools.Registry
	store       SessionStore
	logger      zerolog.Logger
	sessionID   string
	messages    []types.Message
	temperature float64
	useTools    bool

	// Optional observers for the transcript; never mutate state.
	OnToolCall   func(call types.ToolCall)
	OnToolResult func(call types.ToolCall, result string, err error)
}

// NewOrchestrator wires a conversation over the given provider and tools.
// The store may be nil, in which case nothing is persisted.
func NewOrchestrator(client llm.ChatClient, registry *tools.Registry, store SessionStore, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		client:      client,
		registry:    registry,
		store:       store,
		logger:      logger,
		temperature: 0.7,
		useTools:    true,
	}
}

// SetSession switches to the given session id with its loaded history.
func (o *Orchestrator) SetSession(id string, messages []types.Message) {
	o.sessionID = id
	o.messages = messages
}

// SessionID returns the current session identifier.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// History returns a copy of the conversation so far.
func (o *Orchestrator) History() []types.Message {
	out := make([]types.Message, len(o.messages))
	copy(out, o.messages)
	return out
}

// Reset clears the conversation history.
func (o *Orchestrator) Reset() { o.messages = nil }

// SetTemperature adjusts sampling temperature for subsequent turns.
func (o *Orchestrator) SetTemperature(t float64) { o.temperature = t }

// SetToolsEnabled controls whether the tool catalogue is advertised.
func (o *Orchestrator) SetToolsEnabled(enabled bool) { o.useTools = enabled }

// ToolsEnabled reports whether tool calls are currently offered to the model.
func (o *Orchestrator) ToolsEnabled() bool { return o.useTools }

// SetModel rebinds the provider client to a different model.
func (o *Orchestrator) SetModel(name string) { o.client = o.client.WithModel(name) }

// ModelName returns the model the next turn will use.
func (o *Orchestrator) ModelName() string { return o.client.ModelName() }

// SetSystemPrompt replaces the conversation's system message, inserting it
// at the front if none exists.
func (o *Orchestrator) SetSystemPrompt(prompt string) {
	filtered := o.messages[:0]
	for _, m := range o.messages {
		if m.Role != "system" {
			filtered = append(filtered, m)
		}
	}
	o.messages = append([]types.Message{{Role: "system", Content: prompt}}, filtered...)
}

// ProcessTurn runs one user turn to completion: at most one tool-resolution
// round, then a final reply. A provider failure before anything was resolved
// leaves the history untouched; tool results that were already produced are
// kept even if the follow-up completion fails.
func (o *Orchestrator) ProcessTurn(ctx context.Context, input string, stream bool) (*TurnResult, error) {
	history := append(o.History(), types.Message{Role: "user", Content: input})

	defs := o.registry.Definitions()
	if !o.useTools || len(defs) == 0 {
		content, err := o.client.Complete(ctx, history, o.temperature, stream)
		if err != nil {
			return nil, err
		}
		o.messages = append(history, types.Message{Role: "assistant", Content: content})
		o.persist()
		return &TurnResult{Content: content, Streamed: stream}, nil
	}

	resp, err := o.client.CompleteWithTools(ctx, history, defs, o.temperature)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}
	assistant := resp.Choices[0].Message
	assistant.Role = "assistant"

	if len(assistant.ToolCalls) == 0 {
		o.messages = append(history, assistant)
		o.persist()
		return &TurnResult{Content: assistant.Content}, nil
	}

	// The assistant message goes first so every tool message that follows
	// references a tool call the transcript already contains.
	history = append(history, assistant)
	validator := llm.NewValidator(defs)
	for _, call := range assistant.ToolCalls {
		if o.OnToolCall != nil {
			o.OnToolCall(call)
		}
		result, err := o.dispatchToolCall(ctx, validator, call)
		if err != nil {
			// The model gets the failure as tool output and can react
			// to it; the turn continues.
			o.logger.Warn().Str("tool", call.Function.Name).Err(err).Msg("tool call failed")
			result = fmt.Sprintf("Error: %v", err)
		}
		if o.OnToolResult != nil {
			o.OnToolResult(call, result, err)
		}
		history = append(history, types.Message{
			Role:       "tool",
			Content:    result,
			ToolCallID: call.ID,
		})
	}

	// One tool round per turn: the follow-up is a plain completion, so a
	// model asking for more tools here gets no second dispatch.
	final, err := o.client.Complete(ctx, history, o.temperature, stream)
	if err != nil {
		o.messages = history
		o.persist()
		return nil, err
	}

	o.messages = append(history, types.Message{Role: "assistant", Content: final})
	o.persist()
	return &TurnResult{Content: final, Streamed: stream, ToolCalls: len(assistant.ToolCalls)}, nil
}

// dispatchToolCall checks the call against the catalogue that was advertised
// this turn before executing it. A call that fails validation never reaches
// the executor.
func (o *Orchestrator) dispatchToolCall(ctx context.Context, validator *llm.Validator, call types.ToolCall) (string, error) {
	if err := validator.ValidateToolCall(call); err != nil {
		return "", err
	}
	return o.registry.Execute(ctx, call.Function.Name, call.Function.Arguments)
}

func (o *Orchestrator) persist() {
	if o.store == nil || o.sessionID == "" {
		return
	}
	if err := o.store.Save(o.sessionID, o.messages); err != nil {
		o.logger.Warn().Str("session", o.sessionID).Err(err).Msg("failed to persist session")
	}
}
