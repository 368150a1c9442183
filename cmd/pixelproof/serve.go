package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/pixelproof/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve [results-root]",
	Short: "Serve the dashboard over HTTP",
	Long: `Serve a read-only dashboard of the results root.

Endpoints:
  GET /                    overview page
  GET /api/dashboard       dashboard built from the latest runs
  GET /api/history         compliance history
  GET /api/runs/{config}   latest run report of a device configuration
                           (emulator-5554@api33, or a bare device id)
  GET /files/...           reports, diff and composite images`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8080", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	p, logger, err := newPipeline(cmd)
	if err != nil {
		return err
	}

	root := ""
	if len(args) == 1 {
		root = args[0]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return server.New(p, root, logger).ListenAndServe(ctx, serveAddr)
}
