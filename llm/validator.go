// llm/validator.go
package llm

import (
	"encoding/json"
	"fmt"

	"deepchat/types"
)

// Validator checks model-issued tool calls against the advertised catalogue
// before they are dispatched.
type Validator struct {
	tools map[string]types.ToolDefinition
}

type parameterSchema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// NewValidator creates a validator for the given tool catalogue.
func NewValidator(tools []types.ToolDefinition) *Validator {
	toolMap := make(map[string]types.ToolDefinition, len(tools))
	for _, tool := range tools {
		toolMap[tool.Function.Name] = tool
	}
	return &Validator{tools: toolMap}
}

// ValidateToolCall verifies the named tool exists and its arguments parse
// and satisfy the tool's parameter schema.
func (v *Validator) ValidateToolCall(call types.ToolCall) error {
	tool, ok := v.tools[call.Function.Name]
	if !ok {
		return fmt.Errorf("unknown tool: %s", call.Function.Name)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		return fmt.Errorf("arguments for %s are not a JSON object: %w", call.Function.Name, err)
	}

	var schema parameterSchema
	if len(tool.Function.Parameters) > 0 {
		if err := json.Unmarshal(tool.Function.Parameters, &schema); err != nil {
			return fmt.Errorf("invalid parameter schema for %s: %w", call.Function.Name, err)
		}
	}

	for _, required := range schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("missing required field %s for tool %s", required, call.Function.Name)
		}
	}

	for name, value := range args {
		propSchema, ok := schema.Properties[name]
		if !ok {
			// Servers routinely accept extra fields; only typed
			// properties are enforced.
			continue
		}
		prop, ok := propSchema.(map[string]interface{})
		if !ok {
			continue
		}
		propType, ok := prop["type"].(string)
		if !ok {
			continue
		}
		if err := validateType(value, propType); err != nil {
			return fmt.Errorf("invalid value for %s.%s: %w", call.Function.Name, name, err)
		}
	}

	return nil
}

func validateType(value interface{}, expectedType string) error {
	switch expectedType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "number", "integer":
		switch value.(type) {
		case float64, float32, int, int64, int32:
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case "object":
		if _, ok := value.(map[string]interface{}); !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
	case "array":
		if _, ok := value.([]interface{}); !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
	}
	return nil
}
