package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NewRunReport derives the run totals from screens. Screen names must be
// unique. An empty run is valid and has a nil AverageMatch.
func NewRunReport(info RunInfo, screens []ScreenEntry) (*RunReport, error) {
	seen := make(map[string]struct{}, len(screens))
	for _, s := range screens {
		if s.Name == "" {
			return nil, errors.New("screen entry without a name")
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateScreen, s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	report := &RunReport{
		RunInfo:      info,
		Screens:      append([]ScreenEntry(nil), screens...),
		TotalScreens: len(screens),
	}

	total := 0.0
	for _, s := range screens {
		if s.Passed() {
			report.Passed++
		} else {
			report.Failed++
		}
		total += s.Result.Match
	}

	if report.TotalScreens > 0 {
		avg := total / float64(report.TotalScreens)
		report.AverageMatch = &avg
	}

	return report, nil
}

// AllPassed reports whether the run has screens and every one passed.
func (r *RunReport) AllPassed() bool {
	return r.TotalScreens > 0 && r.Failed == 0
}

// Screen looks up an entry by name.
func (r *RunReport) Screen(name string) (ScreenEntry, bool) {
	for _, s := range r.Screens {
		if s.Name == name {
			return s, true
		}
	}
	return ScreenEntry{}, false
}

// Percent is a 0-100 value serialised as "NN.NN%".
type Percent float64

// String formats p with two decimals and a percent sign.
func (p Percent) String() string {
	return strconv.FormatFloat(float64(p), 'f', 2, 64) + "%"
}

// MarshalJSON implements json.Marshaler.
func (p Percent) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts only strings of the form "NN.NN%" within [0,100].
func (p *Percent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("percent must be a string like \"95.00%%\": %w", err)
	}

	num, ok := strings.CutSuffix(s, "%")
	if !ok {
		return fmt.Errorf("percent %q missing %% suffix", s)
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return fmt.Errorf("percent %q: %w", s, err)
	}
	if math.IsNaN(v) || v < 0 || v > 100 {
		return fmt.Errorf("percent %q out of range [0,100]", s)
	}

	*p = Percent(v)
	return nil
}

// runReportJSON is the on-disk shape of report.json.
type runReportJSON struct {
	RunID        string       `json:"runId,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	DeviceID     string       `json:"deviceId"`
	APILevel     int          `json:"apiLevel"`
	DurationMs   int64        `json:"durationMs"`
	TotalScreens int          `json:"totalScreens"`
	Passed       int          `json:"passed"`
	Failed       int          `json:"failed"`
	AverageMatch *float64     `json:"averageMatch"`
	Screens      []screenJSON `json:"screens"`
}

type screenJSON struct {
	Name           string  `json:"name"`
	Status         Status  `json:"status"`
	Match          Percent `json:"match"`
	Passed         bool    `json:"passed"`
	DiffPixels     int     `json:"diffPixels"`
	TotalPixels    int     `json:"totalPixels"`
	DiffImage      string  `json:"diffImage,omitempty"`
	CompositeImage string  `json:"compositeImage,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r RunReport) MarshalJSON() ([]byte, error) {
	out := runReportJSON{
		RunID:        r.RunID(),
		Timestamp:    r.Timestamp,
		DeviceID:     r.DeviceID,
		APILevel:     r.APILevel,
		DurationMs:   r.Duration.Milliseconds(),
		TotalScreens: r.TotalScreens,
		Passed:       r.Passed,
		Failed:       r.Failed,
		AverageMatch: r.AverageMatch,
		Screens:      make([]screenJSON, 0, len(r.Screens)),
	}

	for _, s := range r.Screens {
		out.Screens = append(out.Screens, screenJSON{
			Name:           s.Name,
			Status:         s.Status,
			Match:          Percent(s.Result.Match),
			Passed:         s.Passed(),
			DiffPixels:     s.Result.DiffPixels,
			TotalPixels:    s.Result.TotalPixels,
			DiffImage:      s.Result.DiffImage,
			CompositeImage: s.Result.CompositeImage,
			Error:          s.Error,
		})
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a stored report. Reports whose totals
// disagree with their screens are rejected instead of being repaired.
func (r *RunReport) UnmarshalJSON(data []byte) error {
	var in runReportJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	if in.DeviceID == "" {
		return errors.New("missing deviceId")
	}
	if strings.Contains(in.DeviceID, ConfigSeparator) {
		return fmt.Errorf("deviceId %q contains %q", in.DeviceID, ConfigSeparator)
	}
	if in.RunID != "" && PathSegment(in.RunID) != in.RunID {
		return fmt.Errorf("runId %q is not a plain directory name", in.RunID)
	}
	if in.Timestamp.IsZero() {
		return errors.New("missing timestamp")
	}
	if in.DurationMs < 0 {
		return fmt.Errorf("negative durationMs %d", in.DurationMs)
	}

	screens := make([]ScreenEntry, 0, len(in.Screens))
	for i, s := range in.Screens {
		if !s.Status.Valid() {
			return fmt.Errorf("screens[%d] %q: unknown status %q", i, s.Name, s.Status)
		}
		if s.Passed != (s.Status == StatusPassed) {
			return fmt.Errorf("screens[%d] %q: passed=%v contradicts status %q", i, s.Name, s.Passed, s.Status)
		}
		if s.DiffPixels < 0 || s.TotalPixels < 0 || s.DiffPixels > s.TotalPixels {
			return fmt.Errorf("screens[%d] %q: diffPixels %d outside [0,%d]", i, s.Name, s.DiffPixels, s.TotalPixels)
		}
		screens = append(screens, ScreenEntry{
			Name:   s.Name,
			Status: s.Status,
			Result: ComparisonResult{
				Match:          float64(s.Match),
				DiffPixels:     s.DiffPixels,
				TotalPixels:    s.TotalPixels,
				Passed:         s.Passed,
				DiffImage:      s.DiffImage,
				CompositeImage: s.CompositeImage,
			},
			Error: s.Error,
		})
	}

	built, err := NewRunReport(RunInfo{
		DeviceID:  in.DeviceID,
		APILevel:  in.APILevel,
		Timestamp: in.Timestamp,
		Duration:  time.Duration(in.DurationMs) * time.Millisecond,
		ID:        in.RunID,
	}, screens)
	if err != nil {
		return err
	}

	if in.TotalScreens != built.TotalScreens || in.Passed != built.Passed || in.Failed != built.Failed {
		return fmt.Errorf("totals %d/%d/%d do not match screens %d/%d/%d",
			in.TotalScreens, in.Passed, in.Failed, built.TotalScreens, built.Passed, built.Failed)
	}

	switch {
	case built.TotalScreens == 0 && in.AverageMatch != nil:
		return errors.New("averageMatch must be null for an empty run")
	case built.TotalScreens > 0 && in.AverageMatch == nil:
		return errors.New("averageMatch missing")
	case in.AverageMatch != nil && (*in.AverageMatch < 0 || *in.AverageMatch > 100):
		return fmt.Errorf("averageMatch %v out of range [0,100]", *in.AverageMatch)
	}
	// keep the stored full-precision average rather than one rebuilt from
	// rounded screen percentages
	built.AverageMatch = in.AverageMatch

	*r = *built
	return nil
}
