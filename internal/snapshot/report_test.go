package snapshot

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRunInfo = RunInfo{
	DeviceID:  "pixel_7",
	APILevel:  34,
	Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	Duration:  1500 * time.Millisecond,
}

func entry(t *testing.T, name string, diff, total int) ScreenEntry {
	t.Helper()
	r, err := NewComparisonResult(diff, total, 0.05)
	require.NoError(t, err)
	return ScreenEntry{Name: name, Status: r.Status(), Result: r}
}

func TestNewRunReport_Empty(t *testing.T) {
	report, err := NewRunReport(testRunInfo, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalScreens)
	assert.Nil(t, report.AverageMatch)
	assert.False(t, report.AllPassed())

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"averageMatch":null`)
	assert.Contains(t, string(data), `"screens":[]`)
}

func TestNewRunReport_Totals(t *testing.T) {
	screens := []ScreenEntry{
		entry(t, "login", 0, 100),
		entry(t, "home", 20, 100),
		{Name: "settings", Status: StatusMissingCapture, Error: "screenshot not captured"},
	}

	report, err := NewRunReport(testRunInfo, screens)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalScreens)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, report.TotalScreens, report.Passed+report.Failed)
	require.NotNil(t, report.AverageMatch)
	assert.InDelta(t, 60.0, *report.AverageMatch, 1e-9)

	got, ok := report.Screen("home")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, got.Status)
	_, ok = report.Screen("nope")
	assert.False(t, ok)
}

func TestNewRunReport_DuplicateNames(t *testing.T) {
	_, err := NewRunReport(testRunInfo, []ScreenEntry{
		entry(t, "login", 0, 100),
		entry(t, "login", 1, 100),
	})
	assert.ErrorIs(t, err, ErrDuplicateScreen)

	_, err = NewRunReport(testRunInfo, []ScreenEntry{{Status: StatusError}})
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, "95.00%", Percent(95).String())
	assert.Equal(t, "33.33%", Percent(100.0/3).String())

	data, err := json.Marshal(Percent(12.345))
	require.NoError(t, err)
	assert.Equal(t, `"12.35%"`, string(data))

	var p Percent
	require.NoError(t, json.Unmarshal([]byte(`"87.50%"`), &p))
	assert.Equal(t, Percent(87.5), p)

	for _, bad := range []string{`87.5`, `"87.50"`, `"abc%"`, `"101.00%"`, `"-1.00%"`} {
		assert.Error(t, json.Unmarshal([]byte(bad), &p), bad)
	}
}

func TestRunReport_JSONShape(t *testing.T) {
	report, err := NewRunReport(testRunInfo, []ScreenEntry{entry(t, "login", 5, 100)})
	require.NoError(t, err)
	report.Screens[0].Result.DiffImage = "login_abcd1234-diff.png"
	report.ID = "20260314-092653.000-001"

	data, err := json.Marshal(report)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "pixel_7", raw["deviceId"])
	assert.Equal(t, float64(34), raw["apiLevel"])
	assert.Equal(t, float64(1500), raw["durationMs"])
	assert.Equal(t, "2026-03-14T09:26:53Z", raw["timestamp"])
	assert.Equal(t, "20260314-092653.000-001", raw["runId"])

	screens := raw["screens"].([]any)
	require.Len(t, screens, 1)
	s := screens[0].(map[string]any)
	assert.Equal(t, "95.00%", s["match"])
	assert.Equal(t, true, s["passed"])
	assert.Equal(t, "passed", s["status"])
	assert.Equal(t, "login_abcd1234-diff.png", s["diffImage"])
	assert.NotContains(t, s, "compositeImage")

	var back RunReport
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, report.TotalScreens, back.TotalScreens)
	assert.Equal(t, *report.AverageMatch, *back.AverageMatch)
	assert.Equal(t, report.Screens[0].Result.DiffImage, back.Screens[0].Result.DiffImage)
	assert.True(t, report.Timestamp.Equal(back.Timestamp))
	assert.Equal(t, "20260314-092653.000-001", back.RunID())
	assert.Equal(t, "pixel_7@api34", back.ConfigID())
}

func TestRunReport_UnmarshalRejectsMalformed(t *testing.T) {
	valid := `{
		"timestamp": "2026-03-14T09:26:53Z",
		"deviceId": "pixel_7",
		"apiLevel": 34,
		"durationMs": 10,
		"totalScreens": 1,
		"passed": 1,
		"failed": 0,
		"averageMatch": 100,
		"screens": [{"name": "login", "status": "passed", "match": "100.00%", "passed": true, "diffPixels": 0, "totalPixels": 100}]
	}`

	var ok RunReport
	require.NoError(t, json.Unmarshal([]byte(valid), &ok))
	assert.Equal(t, 1, ok.Passed)

	tests := []struct {
		name    string
		old     string
		new     string
		wantErr string
	}{
		{name: "missing device", old: `"deviceId": "pixel_7"`, new: `"deviceId": ""`, wantErr: "deviceId"},
		{name: "separator in device", old: `"deviceId": "pixel_7"`, new: `"deviceId": "pixel_7@api34"`, wantErr: "deviceId"},
		{name: "run id escapes directory", old: `"timestamp": `, new: `"runId": "../other", "timestamp": `, wantErr: "runId"},
		{name: "numeric match", old: `"match": "100.00%"`, new: `"match": 100`, wantErr: "percent"},
		{name: "unknown status", old: `"status": "passed"`, new: `"status": "skipped"`, wantErr: "unknown status"},
		{name: "passed contradicts status", old: `"passed": true`, new: `"passed": false`, wantErr: "contradicts"},
		{name: "diff above total", old: `"diffPixels": 0`, new: `"diffPixels": 101`, wantErr: "diffPixels"},
		{name: "totals mismatch", old: `"totalScreens": 1`, new: `"totalScreens": 2`, wantErr: "totals"},
		{name: "average missing", old: `"averageMatch": 100`, new: `"averageMatch": null`, wantErr: "averageMatch"},
		{name: "average out of range", old: `"averageMatch": 100`, new: `"averageMatch": 140`, wantErr: "averageMatch"},
		{name: "not json", old: `{`, new: `[`, wantErr: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := strings.Replace(valid, tt.old, tt.new, 1)
			var r RunReport
			err := json.Unmarshal([]byte(data), &r)
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestRunReport_UnmarshalEmptyRun(t *testing.T) {
	data := `{"timestamp":"2026-03-14T09:26:53Z","deviceId":"d","apiLevel":0,"durationMs":0,
		"totalScreens":0,"passed":0,"failed":0,"averageMatch":null,"screens":[]}`

	var r RunReport
	require.NoError(t, json.Unmarshal([]byte(data), &r))
	assert.Nil(t, r.AverageMatch)

	bad := strings.Replace(data, `"averageMatch":null`, `"averageMatch":0`, 1)
	assert.Error(t, json.Unmarshal([]byte(bad), &r))
}
