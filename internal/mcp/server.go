// Package mcp exposes the gating layer over the Model Context Protocol.
//
// The server speaks the stdio transport and calls the security context
// directly; every tool input crosses the full validate-sanitize-limit
// pipeline before any filesystem or parser work happens.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/treegate/pkg/security"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "treegate").
	Name string
	// Version is the server version (default: "1.0.0").
	Version string
	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "treegate",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// Server is the MCP surface over one security context.
type Server struct {
	mcp    *mcp.Server
	sec    *security.Context
	logger *zap.Logger
}

// NewServer creates an MCP server bound to a security context.
func NewServer(cfg *Config, sec *security.Context) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if sec == nil {
		return nil, fmt.Errorf("security context is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:    mcpServer,
		sec:    sec,
		logger: cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Close tears down the security context.
func (s *Server) Close() error {
	s.logger.Info("closing MCP server")
	s.sec.Destroy()
	return nil
}
