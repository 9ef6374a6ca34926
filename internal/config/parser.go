// Package config resolves, parses, validates, and defaults v2m configuration.
package config

import "strings"

const legacyFormatWarning = "legacy key=value config format is deprecated; migrate to JSONC"

// Parse reads configuration content as JSONC (preferred) or legacy key/value
// format, selected by the first non-whitespace character: `{` means JSONC.
func Parse(content string, base Config) (Config, []Warning, error) {
	trimmed := strings.TrimSpace(content)
	switch {
	case trimmed == "":
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil

	case strings.HasPrefix(trimmed, "{"):
		return parseJSONC(content, base)

	default:
		cfg, warnings, err := parseLegacy(content, base)
		if err != nil {
			return Config{}, nil, err
		}
		return cfg, append([]Warning{{Message: legacyFormatWarning}}, warnings...), nil
	}
}
