package snapshot

import (
	"fmt"
	"image/color"
	"time"
)

// Status classifies the outcome of a single screen comparison.
type Status string

const (
	// StatusPassed means the match is at or above the pass cutoff.
	StatusPassed Status = "passed"
	// StatusFailed means the images were compared and the match is too low.
	StatusFailed Status = "failed"
	// StatusMissingBaseline means no reference prototype exists for the screen.
	StatusMissingBaseline Status = "missing-baseline"
	// StatusMissingCapture means a prototype exists but no screenshot was captured.
	StatusMissingCapture Status = "missing-capture"
	// StatusError means an input could not be decoded or compared.
	StatusError Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusMissingBaseline, StatusMissingCapture, StatusError:
		return true
	}
	return false
}

// VisualConfig holds the comparison settings shared by every screen of a run.
type VisualConfig struct {
	// Threshold is the fraction of pixels allowed to differ (0.0 - 1.0).
	Threshold float64 `json:"threshold"`
	// ColorThreshold is the per-pixel perceptual distance sensitivity (0.0 - 1.0).
	ColorThreshold float64 `json:"color_threshold"`
	// IgnoreAntialiasing excludes edge-smoothing pixels from the diff count.
	IgnoreAntialiasing bool `json:"ignore_antialiasing"`
	// Alpha is the opacity of the screenshot drawn under the diff in composites.
	Alpha float64 `json:"alpha"`
	// DiffColor marks counted differences in the diff image.
	DiffColor color.RGBA `json:"diff_color"`
	// AAColor marks ignored anti-aliasing differences in the diff image.
	AAColor color.RGBA `json:"aa_color"`
}

// DefaultVisualConfig returns the documented defaults.
func DefaultVisualConfig() VisualConfig {
	return VisualConfig{
		Threshold:          0.05,
		ColorThreshold:     0.1,
		IgnoreAntialiasing: true,
		Alpha:              0.1,
		DiffColor:          color.RGBA{R: 255, A: 255},
		AAColor:            color.RGBA{G: 192, A: 255},
	}
}

// Validate checks that every fraction lies in [0,1].
func (c VisualConfig) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold %v out of range [0,1]", c.Threshold)
	}
	if c.ColorThreshold < 0 || c.ColorThreshold > 1 {
		return fmt.Errorf("color threshold %v out of range [0,1]", c.ColorThreshold)
	}
	if c.Alpha < 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha %v out of range [0,1]", c.Alpha)
	}
	return nil
}

// ComparisonResult is the score of one actual/reference pair.
type ComparisonResult struct {
	Match          float64 `json:"match"` // 0 - 100
	DiffPixels     int     `json:"diff_pixels"`
	TotalPixels    int     `json:"total_pixels"`
	Passed         bool    `json:"passed"`
	DiffImage      string  `json:"diff_image,omitempty"`
	CompositeImage string  `json:"composite_image,omitempty"`
}

// ScreenEntry is the recorded outcome for one named screen in a run.
type ScreenEntry struct {
	Name   string           `json:"name"`
	Status Status           `json:"status"`
	Result ComparisonResult `json:"result"`
	Error  string           `json:"error,omitempty"`
}

// Passed reports whether the entry counts towards the run's passed total.
func (e ScreenEntry) Passed() bool {
	return e.Status == StatusPassed
}

// RunInfo identifies one run of the screen set on one device configuration.
type RunInfo struct {
	DeviceID  string
	APILevel  int
	Timestamp time.Time
	Duration  time.Duration
	// ID is the run directory name once it has been reserved. Empty means
	// the name derived from Timestamp.
	ID string
}

// ConfigSeparator joins a device id and its API level in a ConfigID. Device
// ids may not contain it.
const ConfigSeparator = "@"

// runIDLayout sorts lexically in time order, and so do the "-NNN" suffixes
// added when two runs of one configuration share a millisecond.
const runIDLayout = "20060102-150405.000"

// ConfigID names the device configuration a run belongs to: the device id,
// plus "@api<level>" when the API level is known. Runs are grouped, stored
// and compared per configuration.
func (r RunInfo) ConfigID() string {
	if r.APILevel <= 0 {
		return r.DeviceID
	}
	return fmt.Sprintf("%s%sapi%d", r.DeviceID, ConfigSeparator, r.APILevel)
}

// RunID is the directory name used for the run's artifacts.
func (r RunInfo) RunID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Timestamp.UTC().Format(runIDLayout)
}

// RunReport collects every screen compared in one run.
type RunReport struct {
	RunInfo
	Screens      []ScreenEntry
	TotalScreens int
	Passed       int
	Failed       int
	// AverageMatch is nil when the run has no screens.
	AverageMatch *float64
}

// ScreenJob describes one screen to compare.
type ScreenJob struct {
	Name          string
	ActualPath    string
	ReferencePath string
}
