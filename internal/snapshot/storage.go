package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Report file names inside a run directory.
const (
	ReportJSONFile = "report.json"
	ReportHTMLFile = "report.html"
)

// Storage lays out run artifacts under a results root:
// <root>/<config>/<run-id>/{report.json,report.html,<screen>-diff.png,...}
// where <config> is the run's ConfigID.
type Storage struct {
	basePath string
}

// maxRunSuffix bounds the "-NNN" suffixes tried when reserving a run dir.
const maxRunSuffix = 999

// NewStorage creates a new storage manager
func NewStorage(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "results"
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create results dir: %w", err)
	}

	return &Storage{basePath: basePath}, nil
}

// BasePath returns the results root.
func (s *Storage) BasePath() string {
	return s.basePath
}

// ConfigDir returns the directory holding every run of a device configuration.
func (s *Storage) ConfigDir(info RunInfo) string {
	return filepath.Join(s.basePath, PathSegment(info.ConfigID()))
}

// RunDir returns the directory for one run's artifacts.
func (s *Storage) RunDir(info RunInfo) string {
	return filepath.Join(s.ConfigDir(info), info.RunID())
}

// CreateRunDir reserves a fresh run directory and records its name in
// info.ID. When the timestamp-derived name is taken, "-001", "-002", ... are
// tried in turn, so concurrent or back-to-back runs never share a directory.
// Failures are returned as a *ReportWriteError.
func (s *Storage) CreateRunDir(info *RunInfo) (string, error) {
	parent := s.ConfigDir(*info)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", &ReportWriteError{Path: parent, Err: err}
	}

	base := info.RunID()
	for n := 0; n <= maxRunSuffix; n++ {
		id := base
		if n > 0 {
			id = fmt.Sprintf("%s-%03d", base, n)
		}
		dir := filepath.Join(parent, id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			info.ID = id
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", &ReportWriteError{Path: dir, Err: err}
		}
	}

	return "", &ReportWriteError{
		Path: filepath.Join(parent, base),
		Err:  fmt.Errorf("no free run directory after %d attempts", maxRunSuffix+1),
	}
}

// ArtifactNames returns the diff and composite file names for a screen,
// relative to the run directory.
func ArtifactNames(screen string) (diff, composite string) {
	slug := screenSlug(screen)
	return slug + "-diff.png", slug + "-composite.png"
}

// SaveRunReport writes report.json and report.html into the run directory.
// Any failure is returned as a *ReportWriteError.
func (s *Storage) SaveRunReport(report *RunReport) (string, error) {
	dir := s.RunDir(report.RunInfo)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &ReportWriteError{Path: dir, Err: err}
	}

	jsonPath := filepath.Join(dir, ReportJSONFile)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", &ReportWriteError{Path: jsonPath, Err: fmt.Errorf("marshal report: %w", err)}
	}
	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return "", &ReportWriteError{Path: jsonPath, Err: err}
	}

	htmlPath := filepath.Join(dir, ReportHTMLFile)
	var buf bytes.Buffer
	if err := RenderHTML(&buf, report); err != nil {
		return "", &ReportWriteError{Path: htmlPath, Err: fmt.Errorf("render html: %w", err)}
	}
	if err := os.WriteFile(htmlPath, buf.Bytes(), 0644); err != nil {
		return "", &ReportWriteError{Path: htmlPath, Err: err}
	}

	return dir, nil
}

// LoadRunReport reads and validates a report.json file.
func LoadRunReport(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReportParseError{Path: path, Err: err}
	}

	var report RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, &ReportParseError{Path: path, Err: err}
	}

	return &report, nil
}

// PathSegment turns an identifier into a safe single path element. Names
// that had to be altered get a short hash suffix so that two different
// identifiers never share a directory or file.
func PathSegment(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '@':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	clean := strings.Trim(b.String(), ".")
	if len(clean) > 40 {
		clean = clean[:40]
	}
	if clean == name && clean != "" {
		return clean
	}

	return clean + "_" + shortHash(name)
}

// screenSlug always carries the hash so artifact names stay distinct even
// for screens whose names differ only in case.
func screenSlug(name string) string {
	seg := PathSegment(name)
	if seg != name {
		return seg
	}
	return seg + "_" + shortHash(name)
}

func shortHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])[:8]
}
