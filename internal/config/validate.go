package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/rbright/waveform/internal/encode"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Recording.SampleRate < 8000 || cfg.Recording.SampleRate > 192000 {
		return nil, fmt.Errorf("recording.sample_rate must be between 8000 and 192000")
	}
	if strings.TrimSpace(cfg.Recording.FileNameFormat) == "" {
		return nil, fmt.Errorf("recording.file_name_format must not be empty")
	}
	if strings.ContainsRune(strings.ReplaceAll(cfg.Recording.FileNameFormat, "''", ""), '/') {
		return nil, fmt.Errorf("recording.file_name_format must not contain '/'")
	}
	if _, err := encode.ParseQuality(cfg.Recording.Quality); err != nil {
		return nil, fmt.Errorf("recording.quality: %w", err)
	}
	if cfg.Permission.RequestTimeoutMS <= 0 {
		return nil, fmt.Errorf("permission.request_timeout_ms must be > 0")
	}
	if cfg.Bridge.RequestTimeoutMS <= 0 {
		return nil, fmt.Errorf("bridge.request_timeout_ms must be > 0")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	if cfg.Cues.NotifyTimeoutMS < 0 {
		return nil, fmt.Errorf("cues.notify_timeout_ms must be >= 0")
	}
	if cfg.Log.MaxSizeMB <= 0 {
		return nil, fmt.Errorf("log.max_size_mb must be > 0")
	}
	if cfg.Log.MaxBackups < 0 {
		return nil, fmt.Errorf("log.max_backups must be >= 0")
	}

	if strings.TrimSpace(cfg.Audio.Input) == "" {
		warnings = append(warnings, Warning{Message: "audio.input is empty; using default source"})
	}
	if !cfg.Cues.Enable && (cfg.Cues.StartFile != "" || cfg.Cues.StopFile != "") {
		warnings = append(warnings, Warning{Message: "cue files are configured but cues.enable=false"})
	}
	if cfg.Debug.AudioDump {
		warnings = append(warnings, Warning{Message: "debug.audio_dump is enabled; raw captures are kept on disk"})
	}

	return warnings, nil
}

// ParseLevel maps a config log level to slog.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
}
