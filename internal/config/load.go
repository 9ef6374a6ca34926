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
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	ld := &loader{
		explicit:     strings.TrimSpace(explicitPath) != "",
		resolvedPath: path,
		sourcePath:   path,
	}
	return ld.run()
}

// loader walks the read-with-legacy-fallback-then-parse sequence Load needs,
// accumulating warnings along the way rather than threading them through
// several return values.
type loader struct {
	explicit     bool
	resolvedPath string
	sourcePath   string
	warnings     []Warning
}

func (l *loader) warn(format string, args ...any) {
	l.warnings = append(l.warnings, Warning{Message: fmt.Sprintf(format, args...)})
}

func (l *loader) run() (Loaded, error) {
	content, err := l.readPrimaryOrLegacy()
	if err != nil {
		return Loaded{}, err
	}

	if content == nil {
		l.warn("config file %q not found; using defaults", l.resolvedPath)
		return Loaded{
			Path:     l.resolvedPath,
			Config:   Default(),
			Warnings: l.warnings,
			Exists:   false,
		}, nil
	}

	cfg, parseWarnings, err := Parse(string(content), Default())
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", l.sourcePath, err)
	}

	return Loaded{
		Path:     l.sourcePath,
		Config:   cfg,
		Warnings: append(l.warnings, parseWarnings...),
		Exists:   true,
	}, nil
}

// readPrimaryOrLegacy reads the resolved config path, falling back to the
// pre-JSONC legacy path (only when the caller didn't pin an explicit path
// and the primary file is simply absent). A nil, nil return means neither
// file exists and defaults should be used.
func (l *loader) readPrimaryOrLegacy() ([]byte, error) {
	content, err := os.ReadFile(l.resolvedPath)
	if err == nil {
		return content, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %q: %w", l.resolvedPath, err)
	}
	if l.explicit {
		return nil, nil
	}

	legacyPath := legacyPathFor(l.resolvedPath)
	if legacyPath == "" {
		return nil, nil
	}

	legacyContent, legacyErr := os.ReadFile(legacyPath)
	switch {
	case legacyErr == nil:
		l.sourcePath = legacyPath
		l.warn("loaded legacy config path %q; migrate to %q (JSONC)", legacyPath, l.resolvedPath)
		return legacyContent, nil
	case errors.Is(legacyErr, os.ErrNotExist):
		return nil, nil
	default:
		return nil, fmt.Errorf("read config %q: %w", legacyPath, legacyErr)
	}
}
