package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [results-root]",
	Short: "Print the stored compliance history",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show only the most recent N sessions")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	p, _, err := newPipeline(cmd)
	if err != nil {
		return err
	}

	root := ""
	if len(args) == 1 {
		root = args[0]
	}

	entries, err := p.History(root)
	if err != nil {
		return err
	}
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history recorded")
		return nil
	}

	fmt.Fprintf(w, "%-17s %10s %11s %10s\n", "SESSION", "PASS RATE", "COMPLIANCE", "DURATION")
	for _, e := range entries {
		fmt.Fprintf(w, "%-17s %10s %11s %10s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04"),
			optionalPercent(e.PassRate),
			optionalPercent(e.VisualCompliance),
			e.Duration.Round(time.Millisecond))
	}
	return nil
}
