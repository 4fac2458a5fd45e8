package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// Environment overrides apply last, whether or not the file exists.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath, Config: Default()}

	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = []Warning{{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		}}
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		cfg, warnings, perr := Parse(string(content), loaded.Config)
		if perr != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, perr)
		}
		loaded.Config = cfg
		loaded.Warnings = warnings
		loaded.Exists = true
	}

	if applyEnvOverrides(&loaded.Config) {
		if _, err := Validate(loaded.Config); err != nil {
			return Loaded{}, fmt.Errorf("environment override: %w", err)
		}
	}
	return loaded, nil
}

// applyEnvOverrides reports whether any WAVEFORM_* variable was applied.
func applyEnvOverrides(cfg *Config) bool {
	applied := false
	if v := strings.TrimSpace(os.Getenv("WAVEFORM_SOCKET")); v != "" {
		cfg.Bridge.Socket = expandUserPath(v)
		applied = true
	}
	if v := strings.TrimSpace(os.Getenv("WAVEFORM_LOG_LEVEL")); v != "" {
		cfg.Log.Level = strings.ToLower(v)
		applied = true
	}
	if v := strings.TrimSpace(os.Getenv("WAVEFORM_FFMPEG")); v != "" {
		cfg.Recording.FFmpegPath = v
		applied = true
	}
	return applied
}
