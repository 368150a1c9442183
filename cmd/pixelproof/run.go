package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/standardbeagle/pixelproof/internal/pipeline"
	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compare every captured screen of one device",
	Long: `Compare every <screen>-actual.<ext> file in the capture directory with the
matching prototype and write report.json and report.html under
<output>/<device>@api<level>/<run>/. Each run gets its own directory, even
when two runs of one configuration start in the same second.

Screens without a prototype are reported as missing-baseline. Exits non-zero
when any screen does not pass.`,
	Example: `  pixelproof run --device pixel_7_api_34 --api-level 34 --captures build/screenshots`,
	Args:    cobra.NoArgs,
	RunE:    runRun,
}

var (
	runDevice   string
	runAPILevel int
	runCaptures string
)

func init() {
	runCmd.Flags().StringVar(&runDevice, "device", "", "Device configuration id")
	runCmd.Flags().IntVar(&runAPILevel, "api-level", 0, "OS/API level of the device")
	runCmd.Flags().StringVar(&runCaptures, "captures", "", "Directory holding the captured screenshots")
	runCmd.MarkFlagRequired("device")
	runCmd.MarkFlagRequired("captures")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	p, logger, err := newPipeline(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, dir, err := p.Run(ctx, pipeline.RunRequest{
		DeviceID:   runDevice,
		APILevel:   runAPILevel,
		CaptureDir: runCaptures,
	})
	if report == nil {
		return err
	}

	printRunReport(cmd, report, dir)

	var writeErr *snapshot.ReportWriteError
	if errors.As(err, &writeErr) {
		logger.Error("report not saved", "path", writeErr.Path, "error", writeErr.Err)
		return err
	}
	if err != nil {
		return err
	}
	if !report.AllPassed() && report.TotalScreens > 0 {
		return errNotCompliant
	}
	return nil
}

func printRunReport(cmd *cobra.Command, r *snapshot.RunReport, dir string) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Device %s (API %d), %d screens\n\n", r.DeviceID, r.APILevel, r.TotalScreens)
	for _, s := range r.Screens {
		printEntry(w, s)
	}

	avg := "n/a"
	if r.AverageMatch != nil {
		avg = snapshot.Percent(*r.AverageMatch).String()
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, average match %s\n", r.Passed, r.Failed, avg)
	fmt.Fprintf(w, "Report: %s\n", dir)
}
