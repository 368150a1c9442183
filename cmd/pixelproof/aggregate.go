package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/pixelproof/internal/dashboard"
	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate [results-root]",
	Short: "Build dashboard.json from the latest run of every device",
	Long: `Merge the latest run of every device under the results root into
<results-root>/dashboard.json and append the session to the compliance history.

Configured targets without results are listed as missing; they do not fail
the command. A report that cannot be read fails the command with its path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)
}

func runAggregate(cmd *cobra.Command, args []string) error {
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

	summary, err := p.Aggregate(ctx, root)
	if err != nil {
		var parseErr *snapshot.ReportParseError
		if errors.As(err, &parseErr) {
			logger.Error("unreadable run report", "path", parseErr.Path, "error", parseErr.Err)
		}
		return err
	}

	printSummary(cmd, summary)
	return nil
}

func optionalPercent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return snapshot.Percent(*v).String()
}

func printSummary(cmd *cobra.Command, s *dashboard.SessionSummary) {
	w := cmd.OutOrStdout()
	m := s.Metrics()

	fmt.Fprintf(w, "%d runs, %d screens: %d passed, %d failed\n", len(s.Runs), s.TotalScreens, s.Passed, s.Failed)
	fmt.Fprintf(w, "Pass rate %s, compliance %s, coverage %s\n",
		optionalPercent(m.PassRate), optionalPercent(s.OverallCompliance), optionalPercent(m.APICoverage))

	if len(s.Timeline) > 0 {
		fmt.Fprintln(w)
	}
	for _, e := range s.Timeline {
		fmt.Fprintf(w, "  %-10s %-24s %s  %s\n",
			e.Status, e.ConfigID, e.Timestamp.Format("2006-01-02 15:04"), optionalPercent(e.AverageMatch))
	}
	if len(s.Missing) > 0 {
		fmt.Fprintf(w, "\nNo results found for: %s\n", strings.Join(s.Missing, ", "))
	}
}
