// tools/builtin.go
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"deepchat/types"
)

// ShellTool runs a command through sh and captures its output.
type ShellTool struct{}

func (t *ShellTool) Name() string { return "shell" }

func (t *ShellTool) Definition() types.ToolDefinition {
	return types.NewFunctionDef("shell", "Execute a shell command", json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The shell command to execute"}
		},
		"required": ["command"]
	}`))
}

func (t *ShellTool) Execute(ctx context.Context, args string) (string, error) {
	params, err := parseArgs(args)
	if err != nil {
		return "", err
	}
	command, err := stringParam(params, "command")
	if err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// Command failures are still useful output for the model;
		// only a spawn failure with nothing captured is an error.
		if stdout.Len() == 0 && stderr.Len() == 0 {
			return "", fmt.Errorf("command failed: %w", err)
		}
	}
	return fmt.Sprintf("stdout:\n%s\nstderr:\n%s", stdout.String(), stderr.String()), nil
}

// CalculatorTool evaluates arithmetic expressions with bc.
type CalculatorTool struct{}

func (t *CalculatorTool) Name() string { return "calculator" }

func (t *CalculatorTool) Definition() types.ToolDefinition {
	return types.NewFunctionDef("calculator", "Perform mathematical calculations", json.RawMessage(`{
		"type": "object",
		"properties": {
			"expression": {"type": "string", "description": "Mathematical expression to evaluate"}
		},
		"required": ["expression"]
	}`))
}

func (t *CalculatorTool) Execute(ctx context.Context, args string) (string, error) {
	params, err := parseArgs(args)
	if err != nil {
		return "", err
	}
	expression, err := stringParam(params, "expression")
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "bc", "-l")
	cmd.Stdin = strings.NewReader(expression + "\n")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("bc failed: %w", err)
	}
	answer := strings.TrimSpace(string(output))
	return fmt.Sprintf("%s = %s", expression, answer), nil
}

// FileReadTool reads a whole file.
type FileReadTool struct{}

func (t *FileReadTool) Name() string { return "read_file" }

func (t *FileReadTool) Definition() types.ToolDefinition {
	return types.NewFunctionDef("read_file", "Read contents of a file", json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file to read"}
		},
		"required": ["path"]
	}`))
}

func (t *FileReadTool) Execute(ctx context.Context, args string) (string, error) {
	params, err := parseArgs(args)
	if err != nil {
		return "", err
	}
	path, err := stringParam(params, "path")
	if err != nil {
		return "", err
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(contents), nil
}

// FileWriteTool writes a whole file, truncating any existing content.
type FileWriteTool struct{}

func (t *FileWriteTool) Name() string { return "write_file" }

func (t *FileWriteTool) Definition() types.ToolDefinition {
	return types.NewFunctionDef("write_file", "Write content to a file", json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file to write"},
			"content": {"type": "string", "description": "Content to write to the file"}
		},
		"required": ["path", "content"]
	}`))
}

func (t *FileWriteTool) Execute(ctx context.Context, args string) (string, error) {
	params, err := parseArgs(args)
	if err != nil {
		return "", err
	}
	path, err := stringParam(params, "path")
	if err != nil {
		return "", err
	}
	content, ok := params["content"].(string)
	if !ok {
		return "", fmt.Errorf("missing content parameter")
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", err
	}
	return fmt.Sprintf("File written to %s", path), nil
}
