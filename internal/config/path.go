package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const configFileName = "config.conf"

// ResolvePath picks the config.conf location: an explicit CLI path wins,
// then a V2M_CONFIG_PATH override, then XDG_CONFIG_HOME, then ~/.config.
func ResolvePath(explicit string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, nil
	}

	if p := strings.TrimSpace(os.Getenv("V2M_CONFIG_PATH")); p != "" {
		return p, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "v2m", configFileName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}
	return filepath.Join(home, ".config", "v2m", configFileName), nil
}
