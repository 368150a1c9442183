package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DotEnvFile is read from the project directory when present.
const DotEnvFile = ".env"

// Environment variables, all prefixed PIXELPROOF_.
const (
	EnvThreshold          = "PIXELPROOF_THRESHOLD"
	EnvColorThreshold     = "PIXELPROOF_COLOR_THRESHOLD"
	EnvIgnoreAntialiasing = "PIXELPROOF_IGNORE_ANTIALIASING"
	EnvAlpha              = "PIXELPROOF_ALPHA"
	EnvDiffColor          = "PIXELPROOF_DIFF_COLOR"
	EnvAAColor            = "PIXELPROOF_AA_COLOR"
	EnvOutputDir          = "PIXELPROOF_OUTPUT_DIR"
	EnvReferenceDir       = "PIXELPROOF_REFERENCE_DIR"
	EnvHistoryFile        = "PIXELPROOF_HISTORY_FILE"
	EnvHistoryLimit       = "PIXELPROOF_HISTORY_LIMIT"
	EnvWorkers            = "PIXELPROOF_WORKERS"
	EnvTargets            = "PIXELPROOF_TARGETS"
)

// LookupFunc reports the value of a variable and whether it is set.
type LookupFunc func(key string) (string, bool)

var processLookup LookupFunc = os.LookupEnv

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// ReadDotEnv parses a .env file without touching the process environment.
// A missing file yields an empty map.
func ReadDotEnv(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

// ApplyEnv overrides cfg with every PIXELPROOF_ variable lookup reports.
// Empty values are ignored.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{EnvThreshold, &cfg.Visual.Threshold},
		{EnvColorThreshold, &cfg.Visual.ColorThreshold},
		{EnvAlpha, &cfg.Visual.Alpha},
	}
	for _, f := range floats {
		if v, ok := get(f.key); ok {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = n
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvHistoryLimit, &cfg.HistoryLimit},
		{EnvWorkers, &cfg.Workers},
	}
	for _, i := range ints {
		if v, ok := get(i.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", i.key, err)
			}
			*i.dst = n
		}
	}

	if v, ok := get(EnvIgnoreAntialiasing); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvIgnoreAntialiasing, err)
		}
		cfg.Visual.IgnoreAntialiasing = b
	}

	colors := []struct {
		key string
		dst *color.RGBA
	}{
		{EnvDiffColor, &cfg.Visual.DiffColor},
		{EnvAAColor, &cfg.Visual.AAColor},
	}
	for _, c := range colors {
		if v, ok := get(c.key); ok {
			parsed, err := ParseHexColor(v)
			if err != nil {
				return fmt.Errorf("%s: %w", c.key, err)
			}
			*c.dst = parsed
		}
	}

	if v, ok := get(EnvOutputDir); ok {
		cfg.OutputDir = v
	}
	if v, ok := get(EnvReferenceDir); ok {
		cfg.ReferenceDir = v
	}
	if v, ok := get(EnvHistoryFile); ok {
		cfg.HistoryFile = v
	}
	if v, ok := get(EnvTargets); ok {
		cfg.Targets = SplitList(v)
	}

	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseHexColor parses #rgb, #rrggbb or #rrggbbaa (leading # optional).
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")

	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]}) + "ff"
	case 6:
		hex += "ff"
	case 8:
	default:
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// FormatHexColor renders c as #rrggbb, or #rrggbbaa when not opaque.
func FormatHexColor(c color.RGBA) string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}
