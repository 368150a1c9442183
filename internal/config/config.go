// Package config resolves pixelproof settings from defaults, the project
// KDL file, a .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/standardbeagle/pixelproof/internal/dashboard"
	"github.com/standardbeagle/pixelproof/internal/imaging"
	"github.com/standardbeagle/pixelproof/internal/snapshot"
)

// Config holds the complete tool configuration.
type Config struct {
	// Visual holds the comparison settings.
	Visual snapshot.VisualConfig `json:"visual"`

	// OutputDir is the results root that run directories are written under.
	OutputDir string `json:"output_dir"`
	// ReferenceDir holds the design prototypes.
	ReferenceDir string `json:"reference_dir"`

	// HistoryFile overrides the default <OutputDir>/history.json.
	HistoryFile string `json:"history_file,omitempty"`
	// HistoryLimit is the number of sessions kept in the history.
	HistoryLimit int `json:"history_limit"`

	// Workers bounds concurrent screen comparisons.
	Workers int `json:"workers"`

	// Targets lists the device configurations expected in a session.
	Targets []string `json:"targets,omitempty"`

	// Screens maps screen names to prototype files that do not follow the
	// <screen>.<ext> convention.
	Screens map[string]string `json:"screens,omitempty"`

	CompositeWidth  int `json:"composite_width"`
	CompositeHeight int `json:"composite_height"`
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		Visual:          snapshot.DefaultVisualConfig(),
		OutputDir:       "results",
		ReferenceDir:    "prototypes",
		HistoryLimit:    dashboard.DefaultHistoryLimit,
		Workers:         runtime.NumCPU(),
		Screens:         make(map[string]string),
		CompositeWidth:  imaging.DefaultCompositeWidth,
		CompositeHeight: imaging.DefaultCompositeHeight,
	}
}

// HistoryPath returns the history file location.
func (c *Config) HistoryPath() string {
	if c.HistoryFile != "" {
		return c.HistoryFile
	}
	return filepath.Join(c.OutputDir, "history.json")
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Visual.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output dir is required"))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history limit must be positive, got %d", c.HistoryLimit))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.CompositeWidth <= 0 || c.CompositeHeight <= 0 {
		errs = append(errs, fmt.Errorf("composite size %dx%d must be positive", c.CompositeWidth, c.CompositeHeight))
	}

	return errors.Join(errs...)
}

// Load resolves the configuration for a project directory: defaults, then
// the nearest .pixelproof.kdl at or above dir, then dir/.env, then the
// process environment. The result is validated.
func Load(dir string) (*Config, error) {
	cfg := Default()

	if path := FindProjectConfigFile(dir); path != "" {
		if err := mergeConfigFile(cfg, path); err != nil {
			return nil, err
		}
	}

	dotenv, err := ReadDotEnv(filepath.Join(dir, DotEnvFile))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, mapLookup(dotenv)); err != nil {
		return nil, fmt.Errorf("%s: %w", DotEnvFile, err)
	}
	if err := ApplyEnv(cfg, processLookup); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
