package main

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/pixelproof/internal/dashboard"
	"github.com/standardbeagle/pixelproof/internal/imaging"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

type project struct {
	dir        string
	captures   string
	prototypes string
	results    string
}

func newProject(t *testing.T) *project {
	t.Helper()
	dir := t.TempDir()
	p := &project{
		dir:        dir,
		captures:   filepath.Join(dir, "captures"),
		prototypes: filepath.Join(dir, "prototypes"),
		results:    filepath.Join(dir, "results"),
	}

	red := color.RGBA{R: 255, A: 255}
	blue := color.RGBA{B: 255, A: 255}
	require.NoError(t, imaging.SavePNG(solid(30, 30, red), filepath.Join(p.prototypes, "login.png")))
	require.NoError(t, imaging.SavePNG(solid(30, 30, red), filepath.Join(p.prototypes, "home.png")))
	require.NoError(t, imaging.SavePNG(solid(30, 30, red), filepath.Join(p.captures, "login-actual.png")))
	require.NoError(t, imaging.SavePNG(solid(30, 30, blue), filepath.Join(p.captures, "home-actual.png")))
	return p
}

// execute runs the root command with the project flags prepended.
func (p *project) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(args,
		"--dir", p.dir,
		"--output", p.results,
		"--references", p.prototypes,
		"--workers", "2",
	))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_Compare(t *testing.T) {
	p := newProject(t)

	out, err := p.execute(t, "compare",
		filepath.Join(p.captures, "login-actual.png"),
		filepath.Join(p.prototypes, "login.png"))
	require.NoError(t, err)
	assert.Contains(t, out, "login")
	assert.Contains(t, out, "passed")
	assert.Contains(t, out, "100.00%")

	artifacts := filepath.Join(p.dir, "artifacts")
	out, err = p.execute(t, "compare",
		filepath.Join(p.captures, "home-actual.png"),
		filepath.Join(p.prototypes, "home.png"),
		"--out", artifacts)
	assert.ErrorIs(t, err, errNotCompliant)
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "composite:")

	entries, err := os.ReadDir(artifacts)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestCLI_RunAggregateHistory(t *testing.T) {
	p := newProject(t)

	out, err := p.execute(t, "run", "--device", "pixel_7", "--api-level", "34", "--captures", p.captures)
	assert.ErrorIs(t, err, errNotCompliant)
	assert.Contains(t, out, "Device pixel_7 (API 34), 2 screens")
	assert.Contains(t, out, "1 passed, 1 failed, average match 50.00%")

	out, err = p.execute(t, "aggregate", p.results)
	require.NoError(t, err)
	assert.Contains(t, out, "1 runs, 2 screens: 1 passed, 1 failed")
	assert.FileExists(t, filepath.Join(p.results, dashboard.DashboardFile))

	out, err = p.execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "SESSION")
	assert.Contains(t, out, "50.00%")
}

func TestCLI_AggregateMalformedReport(t *testing.T) {
	p := newProject(t)

	bad := filepath.Join(p.results, "pixel_7", "20260101-000000", "report.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(bad), 0755))
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0644))

	_, err := p.execute(t, "aggregate", p.results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
}

func TestCLI_Errors(t *testing.T) {
	p := newProject(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "compare needs two files", args: []string{"compare", "only-one.png"}},
		{name: "run needs captures", args: []string{"run", "--device", "x"}},
		{name: "aggregate missing root", args: []string{"aggregate", filepath.Join(p.dir, "nowhere")}},
		{name: "unknown log format", args: []string{"history", "--log-format", "xml"}},
		{name: "invalid threshold", args: []string{"history", "--log-format", "text", "--threshold", "2"}},
		{name: "unknown shell", args: []string{"completion", "tcsh"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestCLI_Completion(t *testing.T) {
	p := newProject(t)

	out, err := p.execute(t, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "pixelproof")
}
