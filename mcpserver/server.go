// mcpserver/server.go
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"deepchat/tools"
)

// Server exposes the local tool registry over MCP stdio, so deepchat's
// built-in tools can be used by any MCP client.
type Server struct {
	server   *server.MCPServer
	registry *tools.Registry
	logger   zerolog.Logger
}

// New builds a stdio MCP server advertising every tool in the registry.
func New(registry *tools.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		server: server.NewMCPServer(
			"deepchat-tools",
			"0.1.0",
			server.WithToolCapabilities(true),
			server.WithLogging(),
		),
		registry: registry,
		logger:   logger,
	}

	for _, def := range registry.Definitions() {
		tool := mcp.Tool{
			Name:        def.Function.Name,
			Description: def.Function.Description,
		}
		if len(def.Function.Parameters) > 0 {
			if err := json.Unmarshal(def.Function.Parameters, &tool.InputSchema); err != nil {
				logger.Warn().Str("tool", tool.Name).Err(err).Msg("skipping tool with invalid schema")
				continue
			}
		}
		s.server.AddTool(tool, s.handlerFor(tool.Name))
		logger.Debug().Str("tool", tool.Name).Msg("registered tool")
	}

	s.server.AddNotificationHandler(s.handleNotification)
	return s
}

func (s *Server) handlerFor(name string) func(map[string]interface{}) (*mcp.CallToolResult, error) {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}

		result, err := s.registry.Execute(context.Background(), name, string(args))
		if err != nil {
			s.logger.Warn().Str("tool", name).Err(err).Msg("tool execution failed")
			return nil, err
		}

		return &mcp.CallToolResult{
			Content: []interface{}{
				mcp.TextContent{
					Type: "text",
					Text: result,
				},
			},
		}, nil
	}
}

func (s *Server) handleNotification(notification mcp.JSONRPCNotification) {
	s.logger.Debug().Str("method", notification.Method).Msg("notification received")
}

// Serve blocks, answering requests on stdin/stdout until the stream closes.
func (s *Server) Serve() error {
	s.logger.Info().Msg("serving tools over stdio")
	if err := server.ServeStdio(s.server); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
