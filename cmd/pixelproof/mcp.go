package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/standardbeagle/pixelproof/internal/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as MCP server",
	Long: `Run as an MCP (Model Context Protocol) server over stdio.

This is the mode used by AI coding assistants. Running pixelproof with piped
stdin and no subcommand does the same.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func newMCPServer() *mcp.Server {
	return mcp.NewServer(
		&mcp.Implementation{
			Name:    appName,
			Version: appVersion,
		},
		&mcp.ServerOptions{
			HasTools: true,
			Instructions: `Visual regression server that scores app screenshots against design prototypes.

Available tools:
- visual: compare one screenshot, run a device's screen set, aggregate the
  latest runs into a dashboard, and read the compliance history`,
		},
	)
}

func runMCP(cmd *cobra.Command, args []string) error {
	p, logger, err := newPipeline(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := newMCPServer()
	tools.RegisterVisualTool(server, p)

	logger.Info("starting MCP server", "name", appName, "version", appVersion)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("MCP server shutdown complete")
	return nil
}
