// llm/client.go
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"deepchat/types"
)

// ChatClient is the provider contract the orchestrator depends on.
type ChatClient interface {
	ModelName() string
	Complete(ctx context.Context, messages []types.Message, temperature float64, stream bool) (string, error)
	CompleteWithTools(ctx context.Context, messages []types.Message, tools []types.ToolDefinition, temperature float64) (*types.CompletionResponse, error)
	ListModels(ctx context.Context) ([]string, error)
	WithModel(model string) ChatClient
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	streamOut  io.Writer
	logger     zerolog.Logger
}

type completionRequest struct {
	Model       string                 `json:"model"`
	Messages    []types.Message        `json:"messages"`
	Temperature float64                `json:"temperature"`
	Tools       []types.ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string                 `json:"tool_choice,omitempty"`
	Stream      bool                   `json:"stream"`
}

// New creates a client bound to one endpoint, key, and model.
func New(baseURL, apiKey, model string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		streamOut:  os.Stdout,
		logger:     logger,
	}
}

// StreamTo redirects incremental streaming output, which otherwise goes to
// stdout. Returns the client for chaining during construction.
func (c *Client) StreamTo(w io.Writer) *Client {
	c.streamOut = w
	return c
}

// ModelName returns the model this client is bound to.
func (c *Client) ModelName() string {
	return c.model
}

// WithModel returns a client bound to a different model, sharing the
// underlying transport.
func (c *Client) WithModel(model string) ChatClient {
	derived := *c
	derived.model = model
	return &derived
}

func (c *Client) completionsURL() string {
	base := strings.TrimRight(c.baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func (c *Client) modelsURL() string {
	base := strings.TrimRight(c.baseURL, "/")
	if strings.HasSuffix(base, "/v1") {
		return base + "/models"
	}
	return base + "/v1/models"
}

// Complete sends the conversation and returns the assistant's content.
// With stream set, fragments are written to the stream output as they
// arrive and the aggregate is returned once the stream ends.
func (c *Client) Complete(ctx context.Context, messages []types.Message, temperature float64, stream bool) (string, error) {
	req := completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      stream,
	}
	if stream {
		return c.streamCompletion(ctx, req)
	}
	resp, err := c.simpleCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteWithTools sends the conversation with the tool catalogue attached
// and lets the model decide whether to call a tool. The raw response is
// returned so the caller can inspect the first choice for tool calls.
func (c *Client) CompleteWithTools(ctx context.Context, messages []types.Message, tools []types.ToolDefinition, temperature float64) (*types.CompletionResponse, error) {
	req := completionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: temperature,
		Tools:       tools,
		ToolChoice:  "auto",
		Stream:      false,
	}
	return c.simpleCompletion(ctx, req)
}

func (c *Client) simpleCompletion(ctx context.Context, req completionRequest) (*types.CompletionResponse, error) {
	body, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var completion types.CompletionResponse
	if err := json.Unmarshal(data, &completion); err != nil {
		return nil, fmt.Errorf("failed to decode completion: %w", err)
	}
	return &completion, nil
}

func (c *Client) streamCompletion(ctx context.Context, req completionRequest) (string, error) {
	body, err := c.post(ctx, req, true)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var full strings.Builder
	var streamErr error

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var chunk types.StreamResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug().Str("data", data).Msg("skipping undecodable stream event")
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			fmt.Fprint(c.streamOut, content)
			full.WriteString(content)
		}
	}
	if err := scanner.Err(); err != nil {
		streamErr = &types.StreamError{Err: err}
	}

	if streamErr != nil && full.Len() == 0 {
		// Nothing was emitted, so one non-streaming retry of the same
		// request cannot duplicate output.
		c.logger.Warn().Err(streamErr).Msg("stream failed before any content, retrying without streaming")
		req.Stream = false
		resp, err := c.simpleCompletion(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	}
	if streamErr != nil {
		// Content already reached the caller's output; retrying would
		// print it twice, so keep what arrived.
		c.logger.Warn().Err(streamErr).Msg("stream ended early, keeping partial output")
	}
	return full.String(), nil
}

// ListModels fetches the model identifiers the endpoint offers, in the
// order the endpoint returns them.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &types.APIError{Status: resp.StatusCode, Body: string(body)}
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}

	models := make([]string, 0, len(payload.Data))
	for _, m := range payload.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// post issues the completion request and returns the response body, or an
// APIError on a non-success status.
func (c *Client) post(ctx context.Context, req completionRequest, stream bool) (io.ReadCloser, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &types.APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}
