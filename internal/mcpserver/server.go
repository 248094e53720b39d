package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps feditest and exposes it as MCP tools.
type Server struct {
	version   string
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server reporting version.
func NewServer(version string) *Server {
	mcpServer := server.NewMCPServer(
		"feditest",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
	)
	s := &Server{version: version, mcpServer: mcpServer}
	s.registerTools()
	return s
}

// Start serves MCP on stdin and stdout until the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_drivers",
		mcp.WithDescription("List the registered node drivers and the capabilities each provides"),
	), s.handleListDrivers)

	s.mcpServer.AddTool(mcp.NewTool("list_scenarios",
		mcp.WithDescription("List the scenarios of a test plan with their roles and steps"),
		mcp.WithString("testsdir",
			mcp.Required(),
			mcp.Description("Test plan directory or file"),
		),
	), s.handleListScenarios)

	s.mcpServer.AddTool(mcp.NewTool("run_plan",
		mcp.WithDescription("Run a test plan against a constellation and return the report"),
		mcp.WithString("testsdir",
			mcp.Required(),
			mcp.Description("Test plan directory or file"),
		),
		mcp.WithString("constellation",
			mcp.Required(),
			mcp.Description("Constellation spec file"),
		),
		mcp.WithString("mode",
			mcp.Description("Session mode: live (default), record or replay"),
		),
		mcp.WithString("session",
			mcp.Description("Session artifact path, required in record and replay mode"),
		),
		mcp.WithString("scenario",
			mcp.Description("Glob pattern selecting scenarios by name"),
		),
		mcp.WithString("step_timeout",
			mcp.Description("Step timeout, for example 30s"),
		),
		mcp.WithBoolean("continue_on_failure",
			mcp.Description("Keep running a scenario's steps after an assertion failure"),
		),
	), s.handleRunPlan)
}
