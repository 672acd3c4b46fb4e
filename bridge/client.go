// bridge/client.go
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"deepchat/types"
)

const (
	protocolVersion = "1.0.0"
	clientName      = "deepchat"
	clientVersion   = "0.1.0"
	defaultTimeout  = 10 * time.Second
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int64       `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int64           `json:"id"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type pendingResult struct {
	resp *rpcResponse
	err  error
}

// Client drives one tool-server subprocess over newline-delimited JSON-RPC.
// Requests carry strictly increasing ids; a dedicated reader goroutine
// matches each response to its caller through a pending table, so the write
// and read sides never need to be held together.
type Client struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger zerolog.Logger

	timeout time.Duration

	writeMu sync.Mutex

	mu        sync.Mutex
	nextID    int64
	pending   map[int64]chan pendingResult
	abandoned map[int64]struct{}
	closed    bool

	done chan struct{}
}

// Connect spawns the tool server, wires its pipes, and performs the
// initialize handshake. The returned client is ready for ListTools and
// CallTool; a failed handshake tears the process down.
func Connect(ctx context.Context, name, command string, args []string, env map[string]string, logger zerolog.Logger) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}

	c := newClient(name, stdin, stdout, logger)
	c.cmd = cmd
	go c.drainStderr(stderr)

	if err := c.initialize(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("handshake with %s failed: %w", name, err)
	}

	logger.Info().Str("server", name).Int("pid", cmd.Process.Pid).Msg("tool server connected")
	return c, nil
}

// newClient builds a client over raw pipes and starts the reader loop.
// Split out from Connect so tests can drive the protocol without a process.
func newClient(name string, stdin io.WriteCloser, stdout io.Reader, logger zerolog.Logger) *Client {
	c := &Client{
		name:      name,
		stdin:     stdin,
		logger:    logger,
		timeout:   defaultTimeout,
		pending:   make(map[int64]chan pendingResult),
		abandoned: make(map[int64]struct{}),
		done:      make(chan struct{}),
	}
	go c.readLoop(stdout)
	return c
}

func (c *Client) drainStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.logger.Debug().Str("server", c.name).Str("stderr", scanner.Text()).Msg("tool server output")
	}
}

// readLoop reads one newline-terminated JSON object at a time and delivers
// it to the caller registered under its id. Any transport-level failure is
// terminal: pending calls fail and the client refuses further requests.
func (c *Client) readLoop(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			c.closeWith(fmt.Errorf("%w: %v", types.ErrTransportClosed, err))
			return
		}
		if len(line) <= 1 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.closeWith(fmt.Errorf("%w: undecodable frame: %v", types.ErrTransportClosed, err))
			return
		}

		if resp.Method != "" {
			// Server-initiated notification; nothing is waiting on it.
			c.logger.Debug().Str("server", c.name).Str("method", resp.Method).Msg("notification received")
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
			c.mu.Unlock()
			ch <- pendingResult{resp: &resp}
			continue
		}
		if _, wasAbandoned := c.abandoned[resp.ID]; wasAbandoned {
			// A late reply to a call that timed out or was cancelled; its
			// caller is gone and later calls are unaffected.
			delete(c.abandoned, resp.ID)
			c.mu.Unlock()
			c.logger.Debug().Str("server", c.name).Int64("id", resp.ID).Msg("discarding late reply to abandoned request")
			continue
		}
		// The id matches nothing we ever sent: reject it and fail whoever
		// is waiting, rather than silently accepting a misattributed reply.
		waiting := c.takePendingLocked()
		c.mu.Unlock()
		err = &types.ProtocolError{Code: -32603, Message: fmt.Sprintf("response id %d matches no pending request", resp.ID)}
		for _, w := range waiting {
			w <- pendingResult{err: err}
		}
	}
}

// takePendingLocked empties the pending table; callers must hold mu.
func (c *Client) takePendingLocked() []chan pendingResult {
	waiting := make([]chan pendingResult, 0, len(c.pending))
	for id, ch := range c.pending {
		delete(c.pending, id)
		waiting = append(waiting, ch)
	}
	return waiting
}

// closeWith marks the client closed and fails every pending call.
func (c *Client) closeWith(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	waiting := c.takePendingLocked()
	c.mu.Unlock()

	close(c.done)
	for _, ch := range waiting {
		ch <- pendingResult{err: err}
	}
	c.logger.Debug().Str("server", c.name).Err(err).Msg("tool server transport closed")
}

// call performs one request/response exchange.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, types.ErrTransportClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan pendingResult, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	_, err = c.stdin.Write(data)
	c.writeMu.Unlock()
	if err != nil {
		c.dropPending(id)
		c.closeWith(fmt.Errorf("%w: write failed: %v", types.ErrTransportClosed, err))
		return nil, types.ErrTransportClosed
	}

	select {
	case result := <-ch:
		if result.err != nil {
			return nil, result.err
		}
		if result.resp.Error != nil {
			return nil, &types.ProtocolError{Code: result.resp.Error.Code, Message: result.resp.Error.Message}
		}
		return result.resp.Result, nil
	case <-ctx.Done():
		c.abandonPending(id)
		return nil, ctx.Err()
	case <-time.After(c.timeout):
		c.abandonPending(id)
		return nil, fmt.Errorf("timeout waiting for %s response", method)
	case <-c.done:
		return nil, types.ErrTransportClosed
	}
}

// dropPending forgets a request that was never written; no reply can come.
func (c *Client) dropPending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// abandonPending gives up on a request that is already on the wire. The id is
// remembered so the server's eventual reply is discarded rather than treated
// as one the client never issued.
func (c *Client) abandonPending(id int64) {
	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.abandoned[id] = struct{}{}
	}
	c.mu.Unlock()
}

// initialize performs the handshake; an error object or timeout fails it.
func (c *Client) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"clientInfo": map[string]interface{}{
			"name":    clientName,
			"version": clientVersion,
		},
	}
	_, err := c.call(ctx, "initialize", params)
	return err
}

// ListTools asks the server for its tool catalogue.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := c.call(ctx, "tools/list", map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tools []struct {
			Name           string          `json:"name"`
			Description    string          `json:"description"`
			InputSchema    json.RawMessage `json:"inputSchema"`
			InputSchemaAlt json.RawMessage `json:"input_schema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode tool list: %w", err)
	}

	tools := make([]mcp.Tool, 0, len(payload.Tools))
	for _, t := range payload.Tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = t.InputSchemaAlt
		}
		var inputSchema mcp.ToolInputSchema
		if len(schema) > 0 {
			if err := json.Unmarshal(schema, &inputSchema); err != nil {
				c.logger.Warn().Str("server", c.name).Str("tool", t.Name).Err(err).Msg("skipping tool with invalid schema")
				continue
			}
		}
		tools = append(tools, mcp.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema,
		})
	}
	return tools, nil
}

// CallTool invokes a remote tool and returns its result.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	params := map[string]interface{}{
		"name":      name,
		"arguments": arguments,
	}
	result, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	toolResult := &mcp.CallToolResult{}
	if err := json.Unmarshal(result, &payload); err == nil && len(payload.Content) > 0 {
		for _, item := range payload.Content {
			toolResult.Content = append(toolResult.Content, mcp.TextContent{
				Type: "text",
				Text: item.Text,
			})
		}
		return toolResult, nil
	}

	// Servers that return a bare result object instead of content blocks
	// still produce usable text.
	toolResult.Content = append(toolResult.Content, mcp.TextContent{
		Type: "text",
		Text: string(result),
	})
	return toolResult, nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// Close tears down the transport and reaps the subprocess. Safe to call
// more than once.
func (c *Client) Close() error {
	c.closeWith(types.ErrTransportClosed)

	var errs []error
	if err := c.stdin.Close(); err != nil {
		errs = append(errs, fmt.Errorf("stdin close: %w", err))
	}
	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("kill: %w", err))
		}
		if err := c.cmd.Wait(); err != nil {
			// Dying from our own kill signal is the expected exit here;
			// anything else is worth surfacing.
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				errs = append(errs, fmt.Errorf("wait: %w", err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
