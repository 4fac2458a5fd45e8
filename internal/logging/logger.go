// Package logging configures runtime JSONL logging output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options sizes the rotating log file.
type Options struct {
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
}

// Runtime bundles the configured logger and its open file handle lifecycle.
type Runtime struct {
	Logger *slog.Logger
	Path   string
	closer io.Closer
}

// Close flushes and closes the logger output sink.
func (r Runtime) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// New builds a JSONL logger on a rotating file under the state directory.
func New(opts Options) (Runtime, error) {
	dir, err := StateDir()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Runtime{}, err
	}

	path := filepath.Join(dir, "log.jsonl")
	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}

	h := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: opts.Level})
	return Runtime{Logger: slog.New(h), Path: path, closer: sink}, nil
}

// StateDir selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "waveform"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "waveform"), nil
}
