// types/errors.go
package types

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound indicates a tool name with no registered executor
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExecution indicates a tool executor failure
	ErrToolExecution = errors.New("tool execution failed")

	// ErrTransportClosed indicates the tool server subprocess or its pipes
	// are gone; the owning client accepts no further requests
	ErrTransportClosed = errors.New("transport closed")

	// ErrStream indicates a mid-stream transport failure
	ErrStream = errors.New("stream failed")
)

// APIError is a non-success response from the completion endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Body)
}

// StreamError wraps a transport failure that interrupted a streaming
// completion.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return ErrStream
}

// ToolError wraps a tool dispatch or execution failure.
type ToolError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool error in %s: %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrToolExecution
}

// ProtocolError is an error object reported by a tool server over JSON-RPC.
// It fails the pending call without closing the connection.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}
