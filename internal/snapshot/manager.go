package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/pixelproof/internal/imaging"
)

// Manager orchestrates screen comparisons and run reports
type Manager struct {
	storage   *Storage
	differ    *Differ
	workers   int
	composite imaging.CompositeOptions
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithWorkers bounds the number of screens compared concurrently.
func WithWorkers(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCompositeSize sets the fixed composite canvas size.
func WithCompositeSize(width, height int) ManagerOption {
	return func(m *Manager) {
		m.composite = imaging.CompositeOptions{Width: width, Height: height}
	}
}

// WithClock overrides the time source used for run timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithDifferOptions passes options through to the pixel comparator.
func WithDifferOptions(opts ...DifferOption) ManagerOption {
	return func(m *Manager) {
		for _, opt := range opts {
			opt(m.differ)
		}
	}
}

// NewManager creates a new snapshot manager
func NewManager(storagePath string, cfg VisualConfig, opts ...ManagerOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("visual config: %w", err)
	}

	storage, err := NewStorage(storagePath)
	if err != nil {
		return nil, fmt.Errorf("create storage: %w", err)
	}

	m := &Manager{
		storage: storage,
		differ:  NewDiffer(cfg),
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Storage returns the artifact store.
func (m *Manager) Storage() *Storage {
	return m.storage
}

// Differ returns the pixel comparator.
func (m *Manager) Differ() *Differ {
	return m.differ
}

// Run compares every job for one device configuration and writes the run's
// JSON and HTML reports into a freshly reserved run directory. Screen level
// failures are recorded in the report; only a failure to create the run
// directory or persist the report is returned as an error, and in the
// latter case the report is returned too. Once ctx is done no further
// screens are started; screens already in flight finish.
func (m *Manager) Run(ctx context.Context, info RunInfo, jobs []ScreenJob) (*RunReport, error) {
	if info.DeviceID == "" {
		return nil, errors.New("run requires a device id")
	}
	if strings.Contains(info.DeviceID, ConfigSeparator) {
		return nil, fmt.Errorf("device id %q may not contain %q", info.DeviceID, ConfigSeparator)
	}
	seen := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if _, dup := seen[job.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateScreen, job.Name)
		}
		seen[job.Name] = struct{}{}
	}

	start := time.Now()
	if info.Timestamp.IsZero() {
		info.Timestamp = m.now()
	}
	runDir, err := m.storage.CreateRunDir(&info)
	if err != nil {
		m.logger.Error("run directory not created", "device", info.DeviceID, "api_level", info.APILevel, "error", err)
		return nil, err
	}

	logger := m.logger.With("device", info.DeviceID, "api_level", info.APILevel, "run", info.RunID())
	logger.Info("run started", "screens", len(jobs), "workers", m.workers)

	// each job owns its slot, so no locking is needed while collecting
	entries := make([]ScreenEntry, len(jobs))

	var g errgroup.Group
	g.SetLimit(m.workers)
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			entries[i] = ScreenEntry{
				Name:   job.Name,
				Status: StatusError,
				Error:  fmt.Sprintf("not compared: %v", context.Cause(ctx)),
			}
			continue
		}
		g.Go(func() error {
			entries[i] = m.CompareScreen(runDir, job)
			return nil
		})
	}
	_ = g.Wait()

	info.Duration = time.Since(start)
	report, err := NewRunReport(info, entries)
	if err != nil {
		return nil, err
	}

	if _, err := m.storage.SaveRunReport(report); err != nil {
		logger.Error("report write failed", "error", err)
		return report, err
	}

	logger.Info("run finished",
		"total", report.TotalScreens,
		"passed", report.Passed,
		"failed", report.Failed,
		"duration", info.Duration)

	return report, nil
}

// CompareScreen runs normalize, diff and scoring for one screen and, when
// pixels differ, writes the diff and composite images into runDir before
// returning. An empty runDir skips the artifacts. Failures are reported in
// the entry, never as an error.
func (m *Manager) CompareScreen(runDir string, job ScreenJob) ScreenEntry {
	entry := ScreenEntry{Name: job.Name}
	logger := m.logger.With("screen", job.Name)
	threshold := m.differ.cfg.Threshold

	if job.ActualPath == "" {
		entry.Status = StatusMissingCapture
		entry.Error = fmt.Sprintf("%v for reference %s", ErrMissingCapture, job.ReferencePath)
		logger.Warn("screenshot missing", "reference", job.ReferencePath)
		return entry
	}

	actual, err := imaging.Load(job.ActualPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			entry.Status = StatusMissingCapture
			entry.Error = fmt.Sprintf("%v: %s", ErrMissingCapture, job.ActualPath)
		} else {
			entry.Status = StatusError
			entry.Error = err.Error()
		}
		logger.Warn("screenshot unusable", "error", err)
		return entry
	}

	reference, err := m.loadReference(job.ReferencePath)
	if err != nil {
		if errors.Is(err, ErrMissingReference) {
			entry.Status = StatusMissingBaseline
			total := actual.Rect.Dx() * actual.Rect.Dy()
			entry.Result, _ = NewComparisonResult(total, total, threshold)
		} else {
			entry.Status = StatusError
		}
		entry.Error = err.Error()
		logger.Warn("reference unusable", "error", err)
		return entry
	}

	result, norm, err := m.differ.Compare(actual, reference)
	if err != nil {
		entry.Status = StatusError
		entry.Error = err.Error()
		logger.Warn("comparison failed", "error", err)
		return entry
	}

	if result.DiffPixels > 0 && runDir != "" {
		diffName, compositeName, err := m.writeArtifacts(runDir, job.Name, norm)
		if err != nil {
			entry.Error = fmt.Sprintf("write artifacts: %v", err)
			logger.Error("artifact write failed", "error", err)
		} else {
			result.DiffImage = diffName
			result.CompositeImage = compositeName
		}
	}

	entry.Status = result.Status()
	entry.Result = result
	logger.Debug("screen compared",
		"match", Percent(result.Match).String(),
		"diff_pixels", result.DiffPixels,
		"passed", result.Passed)

	return entry
}

func (m *Manager) loadReference(path string) (*image.RGBA, error) {
	if path == "" {
		return nil, ErrMissingReference
	}
	img, err := imaging.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingReference, path)
		}
		return nil, err
	}
	return img, nil
}

// writeArtifacts saves the raw diff and the labelled composite and returns
// their names relative to runDir.
func (m *Manager) writeArtifacts(runDir, screen string, norm *Normalized) (string, string, error) {
	diffName, compositeName := ArtifactNames(screen)

	if err := imaging.SavePNG(norm.Diff, filepath.Join(runDir, diffName)); err != nil {
		return "", "", fmt.Errorf("save diff image: %w", err)
	}

	composite, err := imaging.Composite([]imaging.Panel{
		{Label: "Actual", Image: norm.Actual},
		{Label: "Expected", Image: norm.Reference},
		{Label: "Diff", Image: imaging.Overlay(norm.Actual, norm.Diff, m.differ.cfg.Alpha)},
	}, m.composite)
	if err != nil {
		return "", "", fmt.Errorf("build composite: %w", err)
	}
	if err := imaging.SavePNG(composite, filepath.Join(runDir, compositeName)); err != nil {
		return "", "", fmt.Errorf("save composite: %w", err)
	}

	return diffName, compositeName, nil
}

// CompareFiles scores one actual/reference pair outside of a run. When
// outDir is empty no artifacts are written.
func (m *Manager) CompareFiles(actualPath, referencePath, outDir string) ScreenEntry {
	name, ok := ScreenNameFromCapture(filepath.Base(actualPath))
	if !ok {
		name = strings.TrimSuffix(filepath.Base(actualPath), filepath.Ext(actualPath))
	}
	return m.CompareScreen(outDir, ScreenJob{Name: name, ActualPath: actualPath, ReferencePath: referencePath})
}
