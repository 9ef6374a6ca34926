// Package logging configures runtime JSONL logging output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

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

// New builds a JSONL logger rooted at the resolved state path, at the level
// named by V2M_LOG_LEVEL (default info).
func New() (Runtime, error) {
	dest, err := newFileDestination()
	if err != nil {
		return Runtime{}, err
	}

	handler := slog.NewJSONHandler(dest.file, &slog.HandlerOptions{Level: levelFromEnv()})
	return Runtime{Logger: slog.New(handler), Path: dest.path, closer: dest.file}, nil
}

type fileDestination struct {
	path string
	file *os.File
}

func newFileDestination() (fileDestination, error) {
	path, err := resolveLogPath()
	if err != nil {
		return fileDestination{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fileDestination{}, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fileDestination{}, err
	}
	return fileDestination{path: path, file: f}, nil
}

// levelFromEnv reads V2M_LOG_LEVEL (debug/info/warn/error, case-insensitive),
// defaulting to info for an unset or unrecognized value.
func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("V2M_LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveLogPath selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func resolveLogPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "v2m", "log.jsonl"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "v2m", "log.jsonl"), nil
}
