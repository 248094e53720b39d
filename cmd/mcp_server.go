package cmd

import (
	"github.com/spf13/cobra"

	"feditest/internal/mcpserver"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Expose feditest as MCP tools over stdio",
		Long: `Run an MCP server on stdin and stdout. It offers the tools list_drivers,
list_scenarios and run_plan so an AI assistant can inspect test plans and
run them. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpserver.NewServer(GetVersion()).Start(cmd.Context())
		},
	}
}
