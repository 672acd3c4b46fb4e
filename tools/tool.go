// tools/tool.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"deepchat/types"
)

// Executor is one callable capability. Implementations describe themselves,
// so the registry never needs to know whether a tool runs in-process or is
// proxied to a tool server.
type Executor interface {
	Name() string
	Definition() types.ToolDefinition
	Execute(ctx context.Context, args string) (string, error)
}

// Registry maps tool names to executors. Duplicate registration overwrites
// the previous binding; the last writer wins.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// DefaultRegistry creates a registry populated with the built-in tools.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ShellTool{})
	r.Register(&CalculatorTool{})
	r.Register(&FileReadTool{})
	r.Register(&FileWriteTool{})
	r.Register(NewHTTPGetTool())
	r.Register(&TimeTool{})
	return r
}

// Register binds an executor under its own name.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := e.Name()
	if _, exists := r.executors[name]; !exists {
		r.order = append(r.order, name)
	}
	r.executors[name] = e
}

// Definitions returns every registered tool's definition, in registration
// order. Stable across calls as long as the registry is unchanged.
func (r *Registry) Definitions() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]types.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.executors[name].Definition())
	}
	return defs
}

// Execute dispatches by exact name match and returns the tool's textual
// output. Failures come back as a ToolError, never a panic.
func (r *Registry) Execute(ctx context.Context, name, args string) (string, error) {
	r.mu.RLock()
	executor, ok := r.executors[name]
	r.mu.RUnlock()
	if !ok {
		return "", &types.ToolError{Tool: name, Message: "not registered", Err: types.ErrToolNotFound}
	}

	result, err := executor.Execute(ctx, args)
	if err != nil {
		return "", &types.ToolError{Tool: name, Message: "execution failed",
			Err: fmt.Errorf("%w: %v", types.ErrToolExecution, err)}
	}
	return result, nil
}

// parseArgs decodes the raw argument text the model emitted.
func parseArgs(args string) (map[string]interface{}, error) {
	params := make(map[string]interface{})
	if args == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return params, nil
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]interface{}, key string) (string, error) {
	value, ok := params[key].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("missing %s parameter", key)
	}
	return value, nil
}
