// Package config manages treesnap configuration and its location on disk.
//
// Configuration is a YAML file holding defaults for scan, diff and watch
// options. Command-line flags override anything set in the file. The file
// is optional; a missing default file yields the built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfig names the environment variable that points at a config file.
const EnvConfig = "TREESNAP_CONFIG"

// FileName is the config file name inside the config directory.
const FileName = "config.yaml"

// DefaultPath returns the default config file location:
// $XDG_CONFIG_HOME/treesnap/config.yaml, falling back to
// ~/.config/treesnap/config.yaml.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "treesnap", FileName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "treesnap", FileName), nil
}

// Locate picks the config file to read. An explicit flag wins over
// TREESNAP_CONFIG, which wins over the default location. explicit reports
// whether the user named the file, in which case it must exist.
func Locate(flagPath string) (path string, explicit bool, err error) {
	if flagPath != "" {
		return flagPath, true, nil
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env, true, nil
	}

	path, err = DefaultPath()
	if err != nil {
		return "", false, err
	}
	return path, false, nil
}
