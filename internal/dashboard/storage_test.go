package dashboard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

func TestLoadRuns(t *testing.T) {
	root := t.TempDir()
	storage, err := snapshot.NewStorage(root)
	require.NoError(t, err)

	save := func(r *snapshot.RunReport) {
		_, err := storage.SaveRunReport(r)
		require.NoError(t, err)
	}
	save(makeRun(t, "pixel", sessionTime.Add(-2*time.Hour), screenSpec{name: "login", diff: 40}))
	save(makeRun(t, "pixel", sessionTime.Add(-time.Hour), screenSpec{name: "login", diff: 0}))
	save(makeRun(t, "tablet", sessionTime, screenSpec{name: "login", diff: 1}))

	// newer run still in progress
	inProgress := storage.RunDir(snapshot.RunInfo{DeviceID: "pixel", Timestamp: sessionTime})
	require.NoError(t, os.MkdirAll(inProgress, 0755))

	// stray files at the root are ignored
	require.NoError(t, os.WriteFile(filepath.Join(root, DashboardFile), []byte("{}"), 0644))

	runs, err := LoadRuns(root)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "pixel", runs[0].DeviceID)
	assert.Equal(t, 100.0, *runs[0].AverageMatch)
	assert.Equal(t, "tablet", runs[1].DeviceID)
}

func TestLoadRuns_APILevelsOfOneDevice(t *testing.T) {
	root := t.TempDir()
	storage, err := snapshot.NewStorage(root)
	require.NoError(t, err)

	for _, r := range []*snapshot.RunReport{
		makeRunAt(t, snapshot.RunInfo{DeviceID: "emulator-5554", APILevel: 33, Timestamp: sessionTime},
			screenSpec{name: "login", diff: 0}),
		makeRunAt(t, snapshot.RunInfo{DeviceID: "emulator-5554", APILevel: 30, Timestamp: sessionTime},
			screenSpec{name: "login", diff: 10}),
	} {
		_, err := storage.CreateRunDir(&r.RunInfo)
		require.NoError(t, err)
		_, err = storage.SaveRunReport(r)
		require.NoError(t, err)
	}

	runs, err := LoadRuns(root)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "emulator-5554@api30", runs[0].ConfigID())
	assert.Equal(t, 90.0, *runs[0].AverageMatch)
	assert.Equal(t, "emulator-5554@api33", runs[1].ConfigID())
	assert.Equal(t, 100.0, *runs[1].AverageMatch)
}

func TestLoadRuns_SameInstantRuns(t *testing.T) {
	root := t.TempDir()
	storage, err := snapshot.NewStorage(root)
	require.NoError(t, err)

	for _, diff := range []int{40, 0} {
		r := makeRunAt(t, snapshot.RunInfo{DeviceID: "pixel", Timestamp: sessionTime},
			screenSpec{name: "login", diff: diff})
		_, err := storage.CreateRunDir(&r.RunInfo)
		require.NoError(t, err)
		_, err = storage.SaveRunReport(r)
		require.NoError(t, err)
	}

	runs, err := LoadRuns(root)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 100.0, *runs[0].AverageMatch, "the suffixed run is the newer one")
	assert.Equal(t, "20260502-120000.000-001", runs[0].RunID())
}

func TestLoadRuns_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	_, err := LoadRuns(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)

	root := t.TempDir()
	runDir := filepath.Join(root, "pixel", "20260502-120000")
	require.NoError(t, os.MkdirAll(runDir, 0755))
	bad := filepath.Join(runDir, snapshot.ReportJSONFile)
	require.NoError(t, os.WriteFile(bad, []byte(`{"deviceId":"pixel","screens":[{"match":95}]}`), 0644))

	_, err = LoadRuns(root)
	var parseErr *snapshot.ReportParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, bad, parseErr.Path)
}

func TestWriteDashboard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", DashboardFile)
	summary := Aggregate([]*snapshot.RunReport{
		makeRun(t, "pixel", sessionTime, screenSpec{name: "login", diff: 0}),
	}, quietOptions("pixel", "tablet"))

	require.NoError(t, WriteDashboard(path, summary.Dashboard()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"missing": [`)
	assert.Contains(t, string(data), `"tablet"`)
	assert.Contains(t, string(data), `"overallCompliance": 100`)
}
