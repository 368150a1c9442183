// Package dashboard rolls per-device run reports into a fleet-wide
// compliance summary and keeps a bounded history of past sessions.
package dashboard

import (
	"encoding/json"
	"time"

	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

// EventStatus is the outcome shown for one configuration in the timeline.
type EventStatus string

const (
	EventPassed    EventStatus = "passed"
	EventFailed    EventStatus = "failed"
	EventEmpty     EventStatus = "empty"
	EventNoResults EventStatus = "no-results"
)

// Event is one timeline row.
type Event struct {
	Timestamp    time.Time   `json:"timestamp"`
	ConfigID     string      `json:"configId"`
	DeviceID     string      `json:"deviceId"`
	APILevel     int         `json:"apiLevel,omitempty"`
	Status       EventStatus `json:"status"`
	TotalScreens int         `json:"totalScreens"`
	Passed       int         `json:"passed"`
	Failed       int         `json:"failed"`
	AverageMatch *float64    `json:"averageMatch"`
}

// ScreenAcross is the cross-device row for one screen name. Devices maps a
// ConfigID to that configuration's match; Average is taken over those
// configurations only.
type ScreenAcross struct {
	Name    string             `json:"name"`
	Devices map[string]float64 `json:"devices"`
	Average float64            `json:"average"`
}

// SessionSummary is the aggregate of every run collected for a session.
type SessionSummary struct {
	Runs         []*snapshot.RunReport
	Targets      []string
	Missing      []string
	TotalScreens int
	Passed       int
	Failed       int
	// OverallCompliance is nil when no run compared any screen.
	OverallCompliance *float64
	Screens           []ScreenAcross
	Timeline          []Event
	GeneratedAt       time.Time
}

// Metrics are the headline numbers of a session.
type Metrics struct {
	TotalTests  int
	PassRate    *float64
	AvgDuration time.Duration
	APICoverage *float64
}

// MarshalJSON implements json.Marshaler.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TotalTests  int      `json:"totalTests"`
		PassRate    *float64 `json:"passRate"`
		AvgDuration int64    `json:"avgDuration"` // ms
		APICoverage *float64 `json:"apiCoverage"`
	}{m.TotalTests, m.PassRate, m.AvgDuration.Milliseconds(), m.APICoverage})
}

// VisualRegression is the cross-device section of the dashboard.
type VisualRegression struct {
	Screens           []ScreenAcross `json:"screens"`
	OverallCompliance *float64       `json:"overallCompliance"`
}

// Dashboard is the document written to dashboard.json.
type Dashboard struct {
	Metrics          Metrics               `json:"metrics"`
	TestMatrix       []*snapshot.RunReport `json:"testMatrix"`
	VisualRegression VisualRegression      `json:"visualRegression"`
	Timeline         []Event               `json:"timeline"`
	Missing          []string              `json:"missing"`
	LastUpdated      time.Time             `json:"lastUpdated"`
}

// HistoryEntry is a point-in-time snapshot of one session's headline numbers.
type HistoryEntry struct {
	Timestamp        time.Time
	Duration         time.Duration
	PassRate         *float64
	VisualCompliance *float64
}

type historyEntryJSON struct {
	Timestamp        time.Time `json:"timestamp"`
	Duration         int64     `json:"duration"` // ms
	PassRate         *float64  `json:"passRate"`
	VisualCompliance *float64  `json:"visualCompliance"`
}

// MarshalJSON implements json.Marshaler.
func (e HistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyEntryJSON{
		Timestamp:        e.Timestamp,
		Duration:         e.Duration.Milliseconds(),
		PassRate:         e.PassRate,
		VisualCompliance: e.VisualCompliance,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *HistoryEntry) UnmarshalJSON(data []byte) error {
	var in historyEntryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = HistoryEntry{
		Timestamp:        in.Timestamp,
		Duration:         time.Duration(in.Duration) * time.Millisecond,
		PassRate:         in.PassRate,
		VisualCompliance: in.VisualCompliance,
	}
	return nil
}
