package snapshot

import "fmt"

// passEpsilon absorbs float error when a match lands exactly on the cutoff.
const passEpsilon = 1e-9

// PassCutoff is the lowest match percentage that passes for threshold.
func PassCutoff(threshold float64) float64 {
	return 100 - threshold*100
}

// NewComparisonResult scores a diff count. The match is
// (total - diff) / total * 100 and a match equal to the cutoff passes.
func NewComparisonResult(diffPixels, totalPixels int, threshold float64) (ComparisonResult, error) {
	if totalPixels <= 0 {
		return ComparisonResult{}, fmt.Errorf("total pixels %d: %w", totalPixels, ErrInvalidDimensions)
	}
	if diffPixels < 0 || diffPixels > totalPixels {
		return ComparisonResult{}, fmt.Errorf("diff pixels %d outside [0,%d]", diffPixels, totalPixels)
	}
	if threshold < 0 || threshold > 1 {
		return ComparisonResult{}, fmt.Errorf("threshold %v out of range [0,1]", threshold)
	}

	match := float64(totalPixels-diffPixels) * 100 / float64(totalPixels)

	return ComparisonResult{
		Match:       match,
		DiffPixels:  diffPixels,
		TotalPixels: totalPixels,
		Passed:      match+passEpsilon >= PassCutoff(threshold),
	}, nil
}

// Status maps the verdict to an entry status.
func (r ComparisonResult) Status() Status {
	if r.Passed {
		return StatusPassed
	}
	return StatusFailed
}

// Description summarises the size of the difference for humans.
func (r ComparisonResult) Description() string {
	diff := 100 - r.Match

	switch {
	case r.DiffPixels == 0:
		return "No visual changes detected"
	case diff < 0.1:
		return "Minimal changes (< 0.1%)"
	case diff < 1.0:
		return fmt.Sprintf("Minor changes (%.2f%%)", diff)
	case diff < 5.0:
		return fmt.Sprintf("Moderate changes (%.2f%%)", diff)
	default:
		return fmt.Sprintf("Significant changes (%.2f%%)", diff)
	}
}
