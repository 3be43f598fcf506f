// ABOUTME: MCP server initialization and configuration
// ABOUTME: Exposes the session controller and trip store to AI agents over stdio

package mcp

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/harper/triplog/internal/recorder"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with the recorder it drives.
type Server struct {
	mcp    *mcp.Server
	ctrl   *recorder.Controller
	logger *log.Logger
}

// NewServer creates MCP server with all capabilities.
func NewServer(ctrl *recorder.Controller, logger *log.Logger) (*Server, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "triplog",
			Version: "1.0.0",
		},
		nil,
	)

	s := &Server{
		mcp:    mcpServer,
		ctrl:   ctrl,
		logger: logger.WithPrefix("mcp"),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server in stdio mode.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Debug("serving on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}
