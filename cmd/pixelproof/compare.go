package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

// errNotCompliant makes the process exit non-zero when screens did not pass.
var errNotCompliant = errors.New("screens below the match threshold")

var compareCmd = &cobra.Command{
	Use:   "compare <actual> <reference>",
	Short: "Compare one screenshot with one prototype",
	Long: `Compare one screenshot with one prototype and print the match.

The screenshot is fitted into the prototype's size before comparing. With
--out, the diff and composite images are written to that directory when the
images differ.

Exits non-zero when the screen does not pass.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

var compareOut string

func init() {
	compareCmd.Flags().StringVar(&compareOut, "out", "", "Directory for diff and composite images")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	p, _, err := newPipeline(cmd)
	if err != nil {
		return err
	}

	entry, err := p.Compare(args[0], args[1], compareOut)
	if err != nil {
		return err
	}

	printEntry(cmd.OutOrStdout(), entry)
	if !entry.Passed() {
		return errNotCompliant
	}
	return nil
}

func printEntry(w io.Writer, e snapshot.ScreenEntry) {
	fmt.Fprintf(w, "%-24s %-17s %8s  %d/%d pixels differ\n",
		e.Name, e.Status, snapshot.Percent(e.Result.Match), e.Result.DiffPixels, e.Result.TotalPixels)
	if e.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", e.Error)
	}
	if e.Result.DiffImage != "" {
		fmt.Fprintf(w, "  diff: %s\n", e.Result.DiffImage)
	}
	if e.Result.CompositeImage != "" {
		fmt.Fprintf(w, "  composite: %s\n", e.Result.CompositeImage)
	}
}
