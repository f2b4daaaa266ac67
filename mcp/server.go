// Package mcp exposes the engine as a Model Context Protocol tool server.
package mcp

import (
	"context"

	"github.com/mintresearch/agent-engine/models"
	"github.com/mintresearch/agent-engine/services/interaction"
	"github.com/mintresearch/agent-engine/services/rules"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const (
	serverName    = "agent-engine"
	serverVersion = "0.1.0"
)

// Invoker runs one interaction through the pipeline
type Invoker interface {
	Invoke(ctx context.Context, input string, policy models.Policy) *interaction.Result
}

// RulesService lists rule sources and checks policies against them
type RulesService interface {
	List(ctx context.Context) (*rules.ListResult, error)
	Check(ctx context.Context, policy models.Policy, ruleFiles []string) (*rules.CheckResult, error)
}

// Server wraps the MCP SDK server with the engine tools.
type Server struct {
	mcpServer *mcpsdk.Server
	invoker   Invoker
	rules     RulesService
	logger    *zap.Logger
}

// New creates an MCP server exposing invoke, check_policy and list_rules.
func New(invoker Invoker, rulesService RulesService, logger *zap.Logger) *Server {
	s := &Server{
		invoker: invoker,
		rules:   rulesService,
		logger:  logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server running on stdio")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all engine tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "invoke",
		Description: "Run user input through the interaction pipeline (memory lookup, optional tool call, text generation) and return the response.",
	}, s.handleInvoke)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "check_policy",
		Description: "Validate a policy document against the rule files and return any violations.",
	}, s.handleCheckPolicy)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_rules",
		Description: "List the loaded rule files with their category and content.",
	}, s.handleListRules)
}
