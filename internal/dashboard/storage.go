package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

// DashboardFile is written at the results root by the aggregate step.
const DashboardFile = "dashboard.json"

// LoadRuns reads <root>/<config>/<run>/report.json and returns the latest
// run of every device configuration, ordered by device id then API level. Run directories without a
// report are incomplete and skipped. A report that cannot be read or fails
// validation is returned as *snapshot.ReportParseError.
func LoadRuns(root string) ([]*snapshot.RunReport, error) {
	configs, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read results root %s: %w", root, err)
	}

	latest := make(map[string]*snapshot.RunReport)
	for _, config := range configs {
		if !config.IsDir() {
			continue
		}

		path, err := latestReport(filepath.Join(root, config.Name()))
		if err != nil {
			return nil, err
		}
		if path == "" {
			continue
		}

		report, err := snapshot.LoadRunReport(path)
		if err != nil {
			return nil, err
		}
		key := report.ConfigID()
		if prev, ok := latest[key]; ok && !newer(report, prev) {
			continue
		}
		latest[key] = report
	}

	runs := make([]*snapshot.RunReport, 0, len(latest))
	for _, r := range latest {
		runs = append(runs, r)
	}
	sortRuns(runs)
	return runs, nil
}

// latestReport returns the report of the newest run directory that has one.
// Run ids sort chronologically as strings, collision suffixes included.
func latestReport(configDir string) (string, error) {
	entries, err := os.ReadDir(configDir)
	if err != nil {
		return "", fmt.Errorf("read config dir %s: %w", configDir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() > entries[j].Name()
	})
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(configDir, entry.Name(), snapshot.ReportJSONFile)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", &snapshot.ReportParseError{Path: path, Err: err}
		}
		return path, nil
	}
	return "", nil
}

// WriteDashboard writes d as indented JSON to path atomically.
func WriteDashboard(path string, d Dashboard) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal dashboard: %w", err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes via a temp file and rename so readers never see a
// partial file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
