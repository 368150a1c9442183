package dashboard

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

// ErrAggregationInputMissing marks a configured target that produced no run.
// It is logged and reported, never fatal.
var ErrAggregationInputMissing = errors.New("no results found for configuration")

// AggregateOptions configures Aggregate.
type AggregateOptions struct {
	// Targets lists the configured device configurations. A target names
	// either a ConfigID ("emulator-5554@api33") or a bare device id, which
	// matches every API level of that device. Targets without a run are
	// reported as missing and left out of every mean.
	Targets []string
	Logger  *slog.Logger
	Now     func() time.Time
}

// Aggregate merges the runs of one session. Runs are keyed by ConfigID, so one
// device tested at two API levels contributes two runs. When a configuration
// appears more than once the most recent run is used. Nil runs are ignored.
func Aggregate(runs []*snapshot.RunReport, opts AggregateOptions) *SessionSummary {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	latest := make(map[string]*snapshot.RunReport, len(runs))
	for _, run := range runs {
		if run == nil {
			continue
		}
		key := run.ConfigID()
		prev, ok := latest[key]
		if !ok {
			latest[key] = run
			continue
		}
		older := run
		if newer(run, prev) {
			older = prev
			latest[key] = run
		}
		logger.Debug("superseded run ignored", "config", key, "run", older.RunID())
	}

	summary := &SessionSummary{
		Runs:        make([]*snapshot.RunReport, 0, len(latest)),
		Missing:     []string{},
		GeneratedAt: now(),
	}
	for _, run := range latest {
		summary.Runs = append(summary.Runs, run)
	}
	sortRuns(summary.Runs)

	seen := make(map[string]struct{}, len(opts.Targets))
	for _, target := range opts.Targets {
		if _, dup := seen[target]; dup || target == "" {
			continue
		}
		seen[target] = struct{}{}
		summary.Targets = append(summary.Targets, target)
		if !covered(target, summary.Runs) {
			summary.Missing = append(summary.Missing, target)
			logger.Warn("configuration excluded from aggregate",
				"config", target, "error", ErrAggregationInputMissing)
		}
	}

	complianceSum, complianceRuns := 0.0, 0
	for _, run := range summary.Runs {
		summary.TotalScreens += run.TotalScreens
		summary.Passed += run.Passed
		summary.Failed += run.Failed
		if run.TotalScreens > 0 && run.AverageMatch != nil {
			complianceSum += *run.AverageMatch
			complianceRuns++
		}
	}
	if complianceRuns > 0 {
		overall := complianceSum / float64(complianceRuns)
		summary.OverallCompliance = &overall
	}

	summary.Screens = screenTable(summary.Runs)
	summary.Timeline = timeline(summary.Runs, summary.Missing, summary.GeneratedAt)

	logger.Info("session aggregated",
		"runs", len(summary.Runs),
		"missing", len(summary.Missing),
		"screens", summary.TotalScreens)

	return summary
}

// newer reports whether a ran after b. Runs started in the same instant are
// ordered by run id, which carries the collision suffix.
func newer(a, b *snapshot.RunReport) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.RunID() > b.RunID()
}

// sortRuns orders runs by device id, then API level.
func sortRuns(runs []*snapshot.RunReport) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].DeviceID != runs[j].DeviceID {
			return runs[i].DeviceID < runs[j].DeviceID
		}
		return runs[i].APILevel < runs[j].APILevel
	})
}

// covered reports whether target names the configuration or the device of
// one of runs.
func covered(target string, runs []*snapshot.RunReport) bool {
	for _, run := range runs {
		if target == run.ConfigID() || target == run.DeviceID {
			return true
		}
	}
	return false
}

// screenTable builds the per-screen cross-configuration rows. Screens that
// were never captured on a configuration are not counted against it.
func screenTable(runs []*snapshot.RunReport) []ScreenAcross {
	rows := make(map[string]*ScreenAcross)
	for _, run := range runs {
		for _, s := range run.Screens {
			if s.Status == snapshot.StatusMissingCapture {
				continue
			}
			row, ok := rows[s.Name]
			if !ok {
				row = &ScreenAcross{Name: s.Name, Devices: make(map[string]float64)}
				rows[s.Name] = row
			}
			row.Devices[run.ConfigID()] = s.Result.Match
		}
	}

	out := make([]ScreenAcross, 0, len(rows))
	for _, row := range rows {
		sum := 0.0
		for _, m := range row.Devices {
			sum += m
		}
		row.Average = sum / float64(len(row.Devices))
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// timeline lists runs and missing configurations, most recent first.
func timeline(runs []*snapshot.RunReport, missing []string, now time.Time) []Event {
	events := make([]Event, 0, len(runs)+len(missing))
	for _, run := range runs {
		status := EventFailed
		switch {
		case run.TotalScreens == 0:
			status = EventEmpty
		case run.AllPassed():
			status = EventPassed
		}
		events = append(events, Event{
			Timestamp:    run.Timestamp,
			ConfigID:     run.ConfigID(),
			DeviceID:     run.DeviceID,
			APILevel:     run.APILevel,
			Status:       status,
			TotalScreens: run.TotalScreens,
			Passed:       run.Passed,
			Failed:       run.Failed,
			AverageMatch: run.AverageMatch,
		})
	}
	for _, target := range missing {
		events = append(events, Event{Timestamp: now, ConfigID: target, DeviceID: target, Status: EventNoResults})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ConfigID < events[j].ConfigID
	})
	return events
}

// Err reports every missing configuration as an error wrapping
// ErrAggregationInputMissing, or nil when coverage is complete.
func (s *SessionSummary) Err() error {
	errs := make([]error, 0, len(s.Missing))
	for _, target := range s.Missing {
		errs = append(errs, fmt.Errorf("%w: %s", ErrAggregationInputMissing, target))
	}
	return errors.Join(errs...)
}

// Duration is the summed duration of every run in the session.
func (s *SessionSummary) Duration() time.Duration {
	var d time.Duration
	for _, run := range s.Runs {
		d += run.Duration
	}
	return d
}

// Metrics computes the headline numbers.
func (s *SessionSummary) Metrics() Metrics {
	m := Metrics{TotalTests: s.TotalScreens}

	if s.TotalScreens > 0 {
		rate := float64(s.Passed) * 100 / float64(s.TotalScreens)
		m.PassRate = &rate
	}
	if len(s.Runs) > 0 {
		m.AvgDuration = s.Duration() / time.Duration(len(s.Runs))
	}

	// configured = every configuration that reported plus the unmatched targets
	if configured := len(s.Runs) + len(s.Missing); configured > 0 {
		coverage := float64(len(s.Runs)) * 100 / float64(configured)
		m.APICoverage = &coverage
	}

	return m
}

// Dashboard projects the summary onto the dashboard.json document.
func (s *SessionSummary) Dashboard() Dashboard {
	return Dashboard{
		Metrics:    s.Metrics(),
		TestMatrix: s.Runs,
		VisualRegression: VisualRegression{
			Screens:           s.Screens,
			OverallCompliance: s.OverallCompliance,
		},
		Timeline:    s.Timeline,
		Missing:     s.Missing,
		LastUpdated: s.GeneratedAt,
	}
}

// HistoryEntry snapshots the session's headline numbers at now.
func (s *SessionSummary) HistoryEntry(now time.Time) HistoryEntry {
	return HistoryEntry{
		Timestamp:        now,
		Duration:         s.Duration(),
		PassRate:         s.Metrics().PassRate,
		VisualCompliance: s.OverallCompliance,
	}
}
