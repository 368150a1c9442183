package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/standardbeagle/pixelproof/internal/config"
	"github.com/standardbeagle/pixelproof/internal/pipeline"
)

const (
	appName    = "pixelproof"
	appVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Visual regression checks against design prototypes",
	Long: `Pixelproof scores app screenshots against design prototypes:
  - Per-screen pixel comparison with diff and side-by-side composite images
  - Per-device run reports (report.json, report.html)
  - Cross-device dashboard and compliance history
  - MCP server and HTTP dashboard`,
	Version:       appVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Default behavior: if stdin is not a terminal, run as MCP server
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isTerminal(os.Stdin) {
			return runMCP(cmd, args)
		}
		return cmd.Help()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("dir", ".", "Project directory holding .pixelproof.kdl and .env")
	flags.String("output", "", "Results root (overrides configuration)")
	flags.String("references", "", "Prototype directory (overrides configuration)")
	flags.Float64("threshold", 0, "Allowed fraction of differing pixels, 0-1 (overrides configuration)")
	flags.Int("workers", 0, "Concurrent comparisons (overrides configuration)")
	flags.String("log-format", "text", "Log format: text or json")
	flags.BoolP("verbose", "v", false, "Enable debug logging")

	rootCmd.SetVersionTemplate(fmt.Sprintf("%s v%s\n", appName, appVersion))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// newLogger builds the stderr logger selected by --log-format and --verbose.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	format, _ := cmd.Flags().GetString("log-format")
	verbose, _ := cmd.Flags().GetBool("verbose")

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	w := cmd.ErrOrStderr()
	switch format {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
}

// loadConfig resolves the layered configuration and applies explicit flags
// on top.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	dir, _ := cmd.Flags().GetString("dir")
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("references") {
		cfg.ReferenceDir, _ = flags.GetString("references")
	}
	if flags.Changed("threshold") {
		cfg.Visual.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newPipeline wires logger and configuration for a subcommand.
func newPipeline(cmd *cobra.Command) (*pipeline.Pipeline, *slog.Logger, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	p, err := pipeline.New(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return p, logger, nil
}
