package cli

import (
	"github.com/spf13/cobra"

	"github.com/danieljhkim/treesnap/internal/mcpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve snapshot and diff as MCP tools over stdio",
	Long: `Run a Model Context Protocol server on standard input and output.

Two tools are exposed: take_filesystem_snapshot and compare_snapshots. Scan
defaults from the config file apply to every call. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := mcpserver.New(newEngine(cmd), scanDefaults(cfg)).NewMCPServer(rootCmd.Version)
		logger.Info("mcp server starting", "version", rootCmd.Version)
		return mcpserver.Run(cmd.Context(), srv)
	},
}
