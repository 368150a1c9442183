package snapshot

import (
	"errors"
	"fmt"

	"github.com/standardbeagle/pixelproof/internal/imaging"
)

var (
	// ErrInvalidDimensions reports zero-area or mismatched rasters.
	ErrInvalidDimensions = imaging.ErrInvalidDimensions

	// ErrMissingReference reports that the prototype file does not exist.
	ErrMissingReference = errors.New("reference image missing")

	// ErrMissingCapture reports that a prototype has no captured screenshot.
	ErrMissingCapture = errors.New("screenshot not captured")

	// ErrDuplicateScreen reports two entries with the same name in one run.
	ErrDuplicateScreen = errors.New("duplicate screen name")
)

// ReportWriteError is returned when a run report cannot be persisted.
type ReportWriteError struct {
	Path string
	Err  error
}

func (e *ReportWriteError) Error() string {
	return fmt.Sprintf("write report %s: %v", e.Path, e.Err)
}

func (e *ReportWriteError) Unwrap() error { return e.Err }

// ReportParseError is returned when a stored run report is unreadable or
// does not satisfy the report invariants.
type ReportParseError struct {
	Path string
	Err  error
}

func (e *ReportParseError) Error() string {
	return fmt.Sprintf("parse report %s: %v", e.Path, e.Err)
}

func (e *ReportParseError) Unwrap() error { return e.Err }
