// Package pipeline wires configuration, screen comparison, aggregation and
// history into the operations exposed by the CLI, the MCP tool and the
// dashboard server.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/standardbeagle/pixelproof/internal/config"
	"github.com/standardbeagle/pixelproof/internal/dashboard"
	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

// Pipeline runs the engine against one configuration.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time

	// serialises history appends across concurrent aggregations
	historyMu sync.Mutex
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New validates cfg and returns a pipeline for it.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{cfg: cfg, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Config returns the configuration in use.
func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

func (p *Pipeline) manager() (*snapshot.Manager, error) {
	return snapshot.NewManager(p.cfg.OutputDir, p.cfg.Visual,
		snapshot.WithWorkers(p.cfg.Workers),
		snapshot.WithLogger(p.logger),
		snapshot.WithCompositeSize(p.cfg.CompositeWidth, p.cfg.CompositeHeight),
		snapshot.WithClock(p.now),
	)
}

// Compare scores a single actual/reference pair. Artifacts are written to
// outDir when it is set and the images differ.
func (p *Pipeline) Compare(actualPath, referencePath, outDir string) (snapshot.ScreenEntry, error) {
	if actualPath == "" || referencePath == "" {
		return snapshot.ScreenEntry{}, errors.New("actual and reference paths are required")
	}
	m, err := p.manager()
	if err != nil {
		return snapshot.ScreenEntry{}, err
	}
	return m.CompareFiles(actualPath, referencePath, outDir), nil
}

// RunRequest describes one device run.
type RunRequest struct {
	DeviceID   string
	APILevel   int
	CaptureDir string
	// ReferenceDir overrides the configured prototype directory.
	ReferenceDir string
}

// Run plans the screens found in the capture directory, compares them and
// writes the run's reports. It returns the report and its directory.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (*snapshot.RunReport, string, error) {
	if req.DeviceID == "" {
		return nil, "", errors.New("device id is required")
	}
	if req.CaptureDir == "" {
		return nil, "", errors.New("capture directory is required")
	}
	refDir := req.ReferenceDir
	if refDir == "" {
		refDir = p.cfg.ReferenceDir
	}

	jobs, err := snapshot.PlanScreens(req.CaptureDir, refDir, p.cfg.Screens)
	if err != nil {
		return nil, "", fmt.Errorf("plan screens: %w", err)
	}

	m, err := p.manager()
	if err != nil {
		return nil, "", err
	}

	report, err := m.Run(ctx, snapshot.RunInfo{DeviceID: req.DeviceID, APILevel: req.APILevel}, jobs)
	if report == nil {
		return nil, "", err
	}
	return report, m.Storage().RunDir(report.RunInfo), err
}

// Summarize aggregates the latest run of every device under root without
// writing anything. An empty root means the configured output directory.
func (p *Pipeline) Summarize(root string) (*dashboard.SessionSummary, error) {
	if root == "" {
		root = p.cfg.OutputDir
	}
	runs, err := dashboard.LoadRuns(root)
	if err != nil {
		return nil, err
	}
	return dashboard.Aggregate(runs, dashboard.AggregateOptions{
		Targets: p.cfg.Targets,
		Logger:  p.logger,
		Now:     p.now,
	}), nil
}

// Aggregate summarises root, writes dashboard.json into it and appends the
// session to the history.
func (p *Pipeline) Aggregate(ctx context.Context, root string) (*dashboard.SessionSummary, error) {
	if root == "" {
		root = p.cfg.OutputDir
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary, err := p.Summarize(root)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(root, dashboard.DashboardFile)
	if err := dashboard.WriteDashboard(path, summary.Dashboard()); err != nil {
		return nil, fmt.Errorf("write dashboard: %w", err)
	}

	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	store, err := dashboard.Open(p.historyPath(root), p.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if _, err := store.Record(summary, p.now()); err != nil {
		return nil, fmt.Errorf("record history: %w", err)
	}

	p.logger.Info("dashboard written", "path", path, "history", store.Path())
	return summary, nil
}

// History returns the stored session history for root, oldest first.
func (p *Pipeline) History(root string) ([]dashboard.HistoryEntry, error) {
	if root == "" {
		root = p.cfg.OutputDir
	}

	p.historyMu.Lock()
	defer p.historyMu.Unlock()

	store, err := dashboard.Open(p.historyPath(root), p.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return store.Entries(), nil
}

// LatestRun returns the most recent run report of a configuration under
// root. id is a ConfigID, or a bare device id meaning the newest run of that
// device at any API level.
func (p *Pipeline) LatestRun(root, id string) (*snapshot.RunReport, error) {
	if root == "" {
		root = p.cfg.OutputDir
	}
	runs, err := dashboard.LoadRuns(root)
	if err != nil {
		return nil, err
	}

	var found *snapshot.RunReport
	for _, r := range runs {
		if r.ConfigID() == id {
			return r, nil
		}
		if r.DeviceID == id && (found == nil || r.Timestamp.After(found.Timestamp)) {
			found = r
		}
	}
	if found == nil {
		return nil, fmt.Errorf("configuration %q: %w", id, os.ErrNotExist)
	}
	return found, nil
}

func (p *Pipeline) historyPath(root string) string {
	if p.cfg.HistoryFile != "" {
		return p.cfg.HistoryFile
	}
	return filepath.Join(root, "history.json")
}
