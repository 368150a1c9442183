package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/pixelproof/internal/dashboard"
	"github.com/standardbeagle/pixelproof/internal/pipeline"
	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

// VisualInput defines input for the visual tool
type VisualInput struct {
	Action       string `json:"action" jsonschema:"Action: compare, run, aggregate, history"`
	Actual       string `json:"actual,omitempty" jsonschema:"Screenshot file (compare)"`
	Reference    string `json:"reference,omitempty" jsonschema:"Prototype file (compare)"`
	OutDir       string `json:"out_dir,omitempty" jsonschema:"Directory for diff and composite images (compare, optional)"`
	DeviceID     string `json:"device_id,omitempty" jsonschema:"Device configuration id (run)"`
	APILevel     int    `json:"api_level,omitempty" jsonschema:"OS/API level of the device (run)"`
	CaptureDir   string `json:"capture_dir,omitempty" jsonschema:"Directory holding <screen>-actual.<ext> files (run)"`
	ReferenceDir string `json:"reference_dir,omitempty" jsonschema:"Prototype directory, defaults to the configured one (run)"`
	ResultsDir   string `json:"results_dir,omitempty" jsonschema:"Results root, defaults to the configured output dir (aggregate, history)"`
	Limit        int    `json:"limit,omitempty" jsonschema:"Most recent history entries to return (history)"`
}

// VisualOutput defines output for the visual tool
type VisualOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RegisterVisualTool registers the visual regression MCP tool
func RegisterVisualTool(server *mcp.Server, p *pipeline.Pipeline) {
	handler := func(ctx context.Context, req *mcp.CallToolRequest, input VisualInput) (*mcp.CallToolResult, VisualOutput, error) {
		return handleVisual(ctx, p, input)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "visual",
		Description: `Score app screenshots against design prototypes and track compliance across devices.

Actions:
- compare: Compare one screenshot with one prototype
- run: Compare every <screen>-actual.<ext> in capture_dir for one device and write its reports
- aggregate: Merge the latest run of every device into dashboard.json and append to the history
- history: Show the compliance history

Example compare:
  visual {action: "compare", actual: "shots/login-actual.png", reference: "prototypes/login.png"}

Example run:
  visual {action: "run", device_id: "pixel_7_api_34", api_level: 34, capture_dir: "shots"}`,
	}, handler)
}

func handleVisual(ctx context.Context, p *pipeline.Pipeline, input VisualInput) (*mcp.CallToolResult, VisualOutput, error) {
	switch input.Action {
	case "compare":
		return handleVisualCompare(p, input)
	case "run":
		return handleVisualRun(ctx, p, input)
	case "aggregate":
		return handleVisualAggregate(ctx, p, input)
	case "history":
		return handleVisualHistory(p, input)
	default:
		return toolError("Unknown action: %s. Valid actions: compare, run, aggregate, history", input.Action)
	}
}

func handleVisualCompare(p *pipeline.Pipeline, input VisualInput) (*mcp.CallToolResult, VisualOutput, error) {
	if input.Actual == "" || input.Reference == "" {
		return toolError("Missing required parameters: actual and reference")
	}

	entry, err := p.Compare(input.Actual, input.Reference, input.OutDir)
	if err != nil {
		return toolError("Failed to compare: %v", err)
	}

	return nil, VisualOutput{
		Success: entry.Passed(),
		Message: formatEntry(entry),
		Data:    entry,
	}, nil
}

func handleVisualRun(ctx context.Context, p *pipeline.Pipeline, input VisualInput) (*mcp.CallToolResult, VisualOutput, error) {
	if input.DeviceID == "" || input.CaptureDir == "" {
		return toolError("Missing required parameters: device_id and capture_dir")
	}

	report, dir, err := p.Run(ctx, pipeline.RunRequest{
		DeviceID:     input.DeviceID,
		APILevel:     input.APILevel,
		CaptureDir:   input.CaptureDir,
		ReferenceDir: input.ReferenceDir,
	})
	if err != nil {
		return toolError("Run failed: %v", err)
	}

	return nil, VisualOutput{
		Success: report.AllPassed(),
		Message: formatRunReport(report, dir),
		Data:    report,
	}, nil
}

func handleVisualAggregate(ctx context.Context, p *pipeline.Pipeline, input VisualInput) (*mcp.CallToolResult, VisualOutput, error) {
	summary, err := p.Aggregate(ctx, input.ResultsDir)
	if err != nil {
		return toolError("Aggregation failed: %v", err)
	}

	return nil, VisualOutput{
		Success: len(summary.Missing) == 0 && summary.Failed == 0,
		Message: formatSummary(summary),
		Data:    summary.Dashboard(),
	}, nil
}

func handleVisualHistory(p *pipeline.Pipeline, input VisualInput) (*mcp.CallToolResult, VisualOutput, error) {
	entries, err := p.History(input.ResultsDir)
	if err != nil {
		return toolError("Failed to read history: %v", err)
	}
	if input.Limit > 0 && len(entries) > input.Limit {
		entries = entries[len(entries)-input.Limit:]
	}

	if len(entries) == 0 {
		return nil, VisualOutput{Success: true, Message: "No history recorded", Data: entries}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Compliance history (%d sessions):\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  pass rate %s  compliance %s  (%s)\n",
			e.Timestamp.Format("2006-01-02 15:04"),
			optionalPercent(e.PassRate),
			optionalPercent(e.VisualCompliance),
			sessionDuration(e.Duration))
	}

	return nil, VisualOutput{Success: true, Message: b.String(), Data: entries}, nil
}

// Helper functions

func optionalPercent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return snapshot.Percent(*v).String()
}

func statusIcon(s snapshot.Status) string {
	switch s {
	case snapshot.StatusPassed:
		return "✓"
	case snapshot.StatusFailed:
		return "❌"
	default:
		return "⚠️"
	}
}

func formatEntry(e snapshot.ScreenEntry) string {
	msg := fmt.Sprintf("%s %s: %s (%s match, %d/%d pixels differ)",
		statusIcon(e.Status), e.Name, e.Status,
		snapshot.Percent(e.Result.Match), e.Result.DiffPixels, e.Result.TotalPixels)
	if e.Error != "" {
		msg += "\n   " + e.Error
	}
	if e.Result.CompositeImage != "" {
		msg += "\n   Composite: " + e.Result.CompositeImage
	}
	return msg
}

func formatRunReport(r *snapshot.RunReport, dir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Visual run: %s (API %d)\n", r.DeviceID, r.APILevel)
	b.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	for _, s := range r.Screens {
		b.WriteString(formatEntry(s))
		b.WriteString("\n")
	}

	b.WriteString("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(&b, "Summary: %d/%d passed, average match %s\n", r.Passed, r.TotalScreens, optionalPercent(r.AverageMatch))
	fmt.Fprintf(&b, "Report: %s\n", dir)
	return b.String()
}

func formatSummary(s *dashboard.SessionSummary) string {
	var b strings.Builder
	m := s.Metrics()
	fmt.Fprintf(&b, "Session: %d runs, %d screens, pass rate %s, compliance %s, coverage %s\n",
		len(s.Runs), s.TotalScreens, optionalPercent(m.PassRate),
		optionalPercent(s.OverallCompliance), optionalPercent(m.APICoverage))

	for _, e := range s.Timeline {
		fmt.Fprintf(&b, "  %-10s %s %s\n", e.Status, e.ConfigID, e.Timestamp.Format("2006-01-02 15:04"))
	}
	if len(s.Missing) > 0 {
		fmt.Fprintf(&b, "No results found for: %s\n", strings.Join(s.Missing, ", "))
	}
	return b.String()
}
