package config

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.05, cfg.Visual.Threshold)
	assert.True(t, cfg.Visual.IgnoreAntialiasing)
	assert.Equal(t, 0.1, cfg.Visual.Alpha)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, cfg.Visual.DiffColor)
	assert.Equal(t, "results", cfg.OutputDir)
	assert.Equal(t, "prototypes", cfg.ReferenceDir)
	assert.Equal(t, 30, cfg.HistoryLimit)
	assert.Equal(t, filepath.Join("results", "history.json"), cfg.HistoryPath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "threshold", mutate: func(c *Config) { c.Visual.Threshold = 1.5 }},
		{name: "color threshold", mutate: func(c *Config) { c.Visual.ColorThreshold = -1 }},
		{name: "alpha", mutate: func(c *Config) { c.Visual.Alpha = 7 }},
		{name: "history limit", mutate: func(c *Config) { c.HistoryLimit = 0 }},
		{name: "workers", mutate: func(c *Config) { c.Workers = -2 }},
		{name: "output dir", mutate: func(c *Config) { c.OutputDir = "" }},
		{name: "composite", mutate: func(c *Config) { c.CompositeWidth = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseKDLConfig(t *testing.T) {
	input := `
visual {
    threshold 0
    color-threshold 0.2
    ignore-antialiasing false
    alpha 0.5
    diff-color "#ff00ff"
}
output-dir "out"
reference-dir "design"
history {
    file "trend.json"
    limit 10
}
workers 3
targets "api-33" "api-34"
screens {
    login "login-v2.png"
}
composite {
    width 900
}
`
	cfg := Default()
	require.NoError(t, ParseKDLConfig(input, cfg))

	assert.Equal(t, 0.0, cfg.Visual.Threshold, "explicit zero overrides the default")
	assert.Equal(t, 0.2, cfg.Visual.ColorThreshold)
	assert.False(t, cfg.Visual.IgnoreAntialiasing)
	assert.Equal(t, 0.5, cfg.Visual.Alpha)
	assert.Equal(t, color.RGBA{R: 255, B: 255, A: 255}, cfg.Visual.DiffColor)
	assert.Equal(t, color.RGBA{G: 192, A: 255}, cfg.Visual.AAColor, "unset keeps default")
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, "design", cfg.ReferenceDir)
	assert.Equal(t, "trend.json", cfg.HistoryFile)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, []string{"api-33", "api-34"}, cfg.Targets)
	assert.Equal(t, map[string]string{"login": "login-v2.png"}, cfg.Screens)
	assert.Equal(t, 900, cfg.CompositeWidth)
	assert.Equal(t, 800, cfg.CompositeHeight)
}

func TestParseKDLConfig_BadColor(t *testing.T) {
	err := ParseKDLConfig(`visual { diff-color "nope" }`, Default())
	assert.Error(t, err)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ProjectConfigFile)
	require.NoError(t, WriteDefaultConfig(path))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	def := Default()
	assert.Equal(t, def.Visual, cfg.Visual)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "results"), cfg.OutputDir)
	assert.Equal(t, 30, cfg.HistoryLimit)
}

func TestFindProjectConfigFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigFile), []byte("workers 2\n"), 0644))

	found := FindProjectConfigFile(nested)
	assert.Equal(t, filepath.Join(root, ProjectConfigFile), found)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvThreshold:          "0.1",
		EnvColorThreshold:     " 0.05 ",
		EnvIgnoreAntialiasing: "false",
		EnvAlpha:              "0.3",
		EnvDiffColor:          "#00f",
		EnvAAColor:            "",
		EnvOutputDir:          "/tmp/results",
		EnvReferenceDir:       "protos",
		EnvHistoryFile:        "/tmp/h.json",
		EnvHistoryLimit:       "12",
		EnvWorkers:            "4",
		EnvTargets:            "api-33, api-34,,",
	}

	cfg := Default()
	require.NoError(t, ApplyEnv(cfg, mapLookup(env)))

	assert.Equal(t, 0.1, cfg.Visual.Threshold)
	assert.Equal(t, 0.05, cfg.Visual.ColorThreshold)
	assert.False(t, cfg.Visual.IgnoreAntialiasing)
	assert.Equal(t, 0.3, cfg.Visual.Alpha)
	assert.Equal(t, color.RGBA{B: 255, A: 255}, cfg.Visual.DiffColor)
	assert.Equal(t, color.RGBA{G: 192, A: 255}, cfg.Visual.AAColor, "empty values are ignored")
	assert.Equal(t, "/tmp/results", cfg.OutputDir)
	assert.Equal(t, "protos", cfg.ReferenceDir)
	assert.Equal(t, "/tmp/h.json", cfg.HistoryPath())
	assert.Equal(t, 12, cfg.HistoryLimit)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"api-33", "api-34"}, cfg.Targets)
}

func TestApplyEnv_Invalid(t *testing.T) {
	for _, kv := range [][2]string{
		{EnvThreshold, "lots"},
		{EnvWorkers, "1.5"},
		{EnvIgnoreAntialiasing, "maybe"},
		{EnvDiffColor, "#12345"},
	} {
		t.Run(kv[0], func(t *testing.T) {
			err := ApplyEnv(Default(), mapLookup(map[string]string{kv[0]: kv[1]}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), kv[0])
		})
	}
}

func TestLoad_Layering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte(`
visual {
    threshold 0.2
    alpha 0.4
}
workers 2
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFile), []byte(
		"PIXELPROOF_THRESHOLD=0.15\nPIXELPROOF_WORKERS=6\n"), 0644))
	t.Setenv(EnvWorkers, "8")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.15, cfg.Visual.Threshold, ".env overrides the KDL file")
	assert.Equal(t, 0.4, cfg.Visual.Alpha, "KDL overrides defaults")
	assert.Equal(t, 8, cfg.Workers, "process env overrides .env")
	assert.Equal(t, filepath.Join(dir, "results"), cfg.OutputDir)
}

func TestLoad_InvalidResult(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DotEnvFile), []byte("PIXELPROOF_THRESHOLD=2\n"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{in: "#ff0000", want: color.RGBA{R: 255, A: 255}, ok: true},
		{in: "00c000", want: color.RGBA{G: 192, A: 255}, ok: true},
		{in: "#fff", want: color.RGBA{R: 255, G: 255, B: 255, A: 255}, ok: true},
		{in: "#ff000080", want: color.RGBA{R: 255, A: 128}, ok: true},
		{in: "#gg0000"},
		{in: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "#00c000", FormatHexColor(color.RGBA{G: 192, A: 255}))
	assert.Equal(t, "#ff000080", FormatHexColor(color.RGBA{R: 255, A: 128}))
}
