package config

import (
	"fmt"
	"os"
	"path/filepath"

	kdl "github.com/sblinch/kdl-go"
)

// ProjectConfigFile is the per-project KDL configuration file.
const ProjectConfigFile = ".pixelproof.kdl"

// KDLConfig represents the KDL configuration structure.
// Uses kdl struct tags for unmarshaling.
type KDLConfig struct {
	Visual       KDLVisual         `kdl:"visual"`
	OutputDir    string            `kdl:"output-dir"`
	ReferenceDir string            `kdl:"reference-dir"`
	History      KDLHistory        `kdl:"history"`
	Workers      int               `kdl:"workers"`
	Targets      []string          `kdl:"targets"`
	Screens      map[string]string `kdl:"screens"`
	Composite    KDLComposite      `kdl:"composite"`
}

// KDLVisual holds comparison settings. Pointers distinguish an explicit
// zero from an absent setting.
type KDLVisual struct {
	Threshold          *float64 `kdl:"threshold"`
	ColorThreshold     *float64 `kdl:"color-threshold"`
	IgnoreAntialiasing *bool    `kdl:"ignore-antialiasing"`
	Alpha              *float64 `kdl:"alpha"`
	DiffColor          string   `kdl:"diff-color"`
	AAColor            string   `kdl:"aa-color"`
}

// KDLHistory holds history settings.
type KDLHistory struct {
	File  string `kdl:"file"`
	Limit int    `kdl:"limit"`
}

// KDLComposite holds the composite canvas size.
type KDLComposite struct {
	Width  int `kdl:"width"`
	Height int `kdl:"height"`
}

// FindProjectConfigFile searches for .pixelproof.kdl starting from dir and
// walking up.
func FindProjectConfigFile(dir string) string {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(absDir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(absDir)
		if parent == absDir {
			break
		}
		absDir = parent
	}

	return ""
}

// LoadConfigFile loads configuration from a specific file path on top of
// the defaults.
func LoadConfigFile(path string) (*Config, error) {
	cfg := Default()
	if err := mergeConfigFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := ParseKDLConfig(string(data), cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	// relative directories are relative to the config file
	base := filepath.Dir(path)
	for _, p := range []*string{&cfg.OutputDir, &cfg.ReferenceDir, &cfg.HistoryFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
	return nil
}

// ParseKDLConfig parses KDL configuration data and merges every setting it
// names into cfg.
func ParseKDLConfig(data string, cfg *Config) error {
	var kdlCfg KDLConfig
	if err := kdl.Unmarshal([]byte(data), &kdlCfg); err != nil {
		return err
	}
	return mergeKDLConfig(cfg, &kdlCfg)
}

func mergeKDLConfig(cfg *Config, k *KDLConfig) error {
	v := k.Visual
	if v.Threshold != nil {
		cfg.Visual.Threshold = *v.Threshold
	}
	if v.ColorThreshold != nil {
		cfg.Visual.ColorThreshold = *v.ColorThreshold
	}
	if v.IgnoreAntialiasing != nil {
		cfg.Visual.IgnoreAntialiasing = *v.IgnoreAntialiasing
	}
	if v.Alpha != nil {
		cfg.Visual.Alpha = *v.Alpha
	}
	if v.DiffColor != "" {
		c, err := ParseHexColor(v.DiffColor)
		if err != nil {
			return fmt.Errorf("diff-color: %w", err)
		}
		cfg.Visual.DiffColor = c
	}
	if v.AAColor != "" {
		c, err := ParseHexColor(v.AAColor)
		if err != nil {
			return fmt.Errorf("aa-color: %w", err)
		}
		cfg.Visual.AAColor = c
	}

	if k.OutputDir != "" {
		cfg.OutputDir = k.OutputDir
	}
	if k.ReferenceDir != "" {
		cfg.ReferenceDir = k.ReferenceDir
	}
	if k.History.File != "" {
		cfg.HistoryFile = k.History.File
	}
	if k.History.Limit > 0 {
		cfg.HistoryLimit = k.History.Limit
	}
	if k.Workers > 0 {
		cfg.Workers = k.Workers
	}
	if len(k.Targets) > 0 {
		cfg.Targets = k.Targets
	}
	if cfg.Screens == nil {
		cfg.Screens = make(map[string]string)
	}
	for screen, file := range k.Screens {
		cfg.Screens[screen] = file
	}
	if k.Composite.Width > 0 {
		cfg.CompositeWidth = k.Composite.Width
	}
	if k.Composite.Height > 0 {
		cfg.CompositeHeight = k.Composite.Height
	}

	return nil
}

// WriteDefaultConfig writes a default configuration file with documentation.
func WriteDefaultConfig(path string) error {
	defaultKDL := `// pixelproof configuration
// Relative paths are resolved against this file's directory.

visual {
    threshold 0.05           // fraction of pixels allowed to differ
    color-threshold 0.1      // per-pixel perceptual sensitivity
    ignore-antialiasing true // do not count edge smoothing
    alpha 0.1                // opacity of the screenshot under the diff
    diff-color "#ff0000"
    aa-color "#00c000"
}

output-dir "results"
reference-dir "prototypes"

history {
    limit 30
}

// Device configurations expected in every session
// targets "api-33" "api-34" "api-35"

// Prototypes that do not follow the <screen>.png convention
screens {
    // login "login-v2.png"
}

composite {
    width 1200
    height 800
}
`
	return os.WriteFile(path, []byte(defaultKDL), 0644)
}
